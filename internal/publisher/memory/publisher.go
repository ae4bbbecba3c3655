// Package memory keeps crawl notifications in process, for tests and for
// runs without Pub/Sub.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/program-crawler/internal/publisher"
)

// Message is one recorded notification, encoded exactly as it would be sent.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Publisher records notifications.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish implements crawler.Publisher.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, attrs, err := publisher.Encode(ctx, payload)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data, Attributes: attrs})
	return id, nil
}

// Messages returns a copy of the recorded notifications.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.messages...)
}
