package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// writeEvent writes one server-sent event. Multi-line data becomes several
// data lines, which clients join back with newlines.
func writeEvent(w io.Writer, data string) error {
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *Server) streamSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		http.Error(w, "query parameter is missing", http.StatusBadRequest)
		return
	}
	if s.deps.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(fragment string) error {
		if err := writeEvent(w, fragment); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := s.deps.Assistant.Run(r.Context(), query, emit); err != nil {
		s.logger.Debug("stream aborted",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err),
		)
	}
}
