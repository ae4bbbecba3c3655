package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: false, Timeout: time.Second}, nil, zap.NewNop())
	var fetchErr *crawler.FetchError
	collector := f.buildCollector(crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &crawler.FetchResponse{}, &fetchErr)
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr *crawler.FetchError

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.NotNil(t, fetchErr)
	require.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	require.EqualError(t, fetchErr.Err, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
			return
		case "/partial":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte("<html><body><p>Partial</p></body></html>"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>Program</h1></body></html>"))
	}))
	t.Cleanup(srv.Close)

	limiter := &countingLimiter{}
	f := New(Config{Timeout: 5 * time.Second}, limiter, zap.NewNop())

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/program"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "<h1>Program</h1>")

	// Same URL again: retried tasks must not be rejected as already visited.
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/program"})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)

	// Any 2xx is a successful fetch, not only 200-202.
	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/partial"})
	require.NoError(t, err)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	require.Contains(t, string(resp.Body), "Partial")

	require.Equal(t, int32(4), hits.Load())
	require.Equal(t, int32(4), limiter.calls.Load())
}

func TestFetchLimiterErrorIsFetchError(t *testing.T) {
	t.Parallel()

	f := New(Config{}, &countingLimiter{err: context.Canceled}, nil)
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.ErrorIs(t, err, context.Canceled)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (c *countingLimiter) Wait(context.Context, string) error {
	c.calls.Add(1)
	return c.err
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
