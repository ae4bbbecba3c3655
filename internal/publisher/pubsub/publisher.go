// Package pubsub publishes crawl notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/publisher"
)

// Publisher implements crawler.Publisher over a Pub/Sub client. Topic
// handles are created lazily and reused.
type Publisher struct {
	client *pubsub.Client
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New dials Pub/Sub for projectID using application default credentials.
func New(ctx context.Context, projectID string, logger *zap.Logger) (*Publisher, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *pubsub.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, logger: logger, topics: make(map[string]*pubsub.Topic)}
}

// Publish encodes payload as JSON and blocks until the server acknowledges it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	data, attrs, err := publisher.Encode(ctx, payload)
	if err != nil {
		return "", err
	}
	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("notification published", zap.String("topic", topic), zap.String("message_id", id))
	return id, nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
