package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Normalizer reduces a page to prompt-ready text.
type Normalizer interface {
	Normalize(ctx context.Context, url string) (ExtractionTarget, error)
}

// Extractor produces the first candidate document from normalized text.
type Extractor interface {
	Extract(ctx context.Context, text string) (ProgramInfo, error)
}

// Refiner validates and corrects a candidate document.
type Refiner interface {
	Refine(ctx context.Context, text string, candidate ProgramInfo) (ProgramInfo, error)
}

// ResultStore persists one record per completed task.
type ResultStore interface {
	Append(ctx context.Context, record Record) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, task CrawlTask) error
	Dequeue(ctx context.Context) (CrawlTask, error)
}

// Hasher computes digests for artifact naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
