package assistant

import (
	"strings"
	"unicode/utf8"
)

// Marker separates the model's reasoning from its filter object.
const Marker = "<END_OF_THOUGHTS>"

const (
	flushThreshold = 100
	holdBack       = 20
)

// Splitter separates a streamed reply into reasoning fragments, the marker
// and the trailing payload. Reasoning is forwarded as it arrives, except for
// a short tail that could be the start of a marker split across fragments.
type Splitter struct {
	emit      func(string) error
	transform func(string) string

	buf     string
	ended   bool
	payload strings.Builder
}

// NewSplitter forwards output to emit. transform, when non-nil, rewrites the
// payload before it is emitted.
func NewSplitter(emit func(string) error, transform func(string) string) *Splitter {
	return &Splitter{emit: emit, transform: transform}
}

// Write consumes one fragment of the reply.
func (s *Splitter) Write(fragment string) error {
	if s.ended {
		s.payload.WriteString(fragment)
		return nil
	}
	s.buf += fragment
	if i := strings.Index(s.buf, Marker); i >= 0 {
		before, after := s.buf[:i], s.buf[i+len(Marker):]
		s.buf = ""
		s.ended = true
		s.payload.WriteString(after)
		if before != "" {
			if err := s.emit(before); err != nil {
				return err
			}
		}
		return s.emit(Marker)
	}
	if len(s.buf) <= flushThreshold {
		return nil
	}
	cut := len(s.buf) - holdBack
	for cut > 0 && !utf8.RuneStart(s.buf[cut]) {
		cut--
	}
	out := s.buf[:cut]
	s.buf = s.buf[cut:]
	return s.emit(out)
}

// Finish flushes whatever is buffered once the reply has ended. Without a
// marker the rest is reasoning; after one it is the payload.
func (s *Splitter) Finish() error {
	if !s.ended {
		if s.buf == "" {
			return nil
		}
		out := s.buf
		s.buf = ""
		return s.emit(out)
	}
	payload := strings.TrimSpace(s.payload.String())
	s.payload.Reset()
	if payload == "" {
		return nil
	}
	if s.transform != nil {
		payload = s.transform(payload)
	}
	return s.emit(payload)
}

// SawMarker reports whether the marker has been seen.
func (s *Splitter) SawMarker() bool {
	return s.ended
}
