package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByStatus(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/weights", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	badBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "400"))

	for _, path := range []string{"/api/search", "/api/search", "/api/weights"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, okBefore+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")))
	require.Equal(t, badBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "400")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestMiddlewareKeepsFlusher(t *testing.T) {
	Init()
	var flushed bool
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = w.Write([]byte("data: hi\n\n"))
		f.Flush()
		flushed = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai_stream_search", nil))
	require.True(t, flushed)
	require.True(t, rec.Flushed)
}
