package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrPermanentFailure marks a task that exhausted the global attempt cap.
	ErrPermanentFailure = errors.New("permanent failure")
	// ErrQueueClosed is returned by Queue.Dequeue once a closed queue is drained.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError reports a network failure or non-2xx response for a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// EmptyContentError reports a page that cleaned down to nothing.
type EmptyContentError struct {
	URL string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("no extractable content at %s", e.URL)
}

// ParseError reports model output that could not be decoded as JSON.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model json: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
