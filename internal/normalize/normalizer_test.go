package normalize

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

type fakeFetcher struct {
	resp crawler.FetchResponse
	err  error
	got  crawler.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestNormalizeSuccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	fetcher := &fakeFetcher{resp: crawler.FetchResponse{StatusCode: http.StatusOK, Body: []byte(programPage)}}
	n := New(fetcher, zap.NewNop(), WithClock(fixedClock{t: now}), WithHeaders(http.Header{"Accept-Language": {"en"}}))

	target, err := n.Normalize(context.Background(), "https://www.sim.edu.sg/p")
	require.NoError(t, err)
	require.Equal(t, "https://www.sim.edu.sg/p", target.URL)
	require.Equal(t, now, target.FetchedAt)
	require.Contains(t, target.NormalizedText, "Bachelor of Science in Computing")
	require.Equal(t, []byte(programPage), target.RawHTML)
	require.Equal(t, "en", fetcher.got.Headers.Get("Accept-Language"))
}

func TestNormalizeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fetcher *fakeFetcher
		check   func(t *testing.T, err error)
	}{
		{
			name:    "fetch error passes through",
			fetcher: &fakeFetcher{err: &crawler.FetchError{URL: "u", Err: errors.New("timeout")}},
			check: func(t *testing.T, err error) {
				var fe *crawler.FetchError
				require.ErrorAs(t, err, &fe)
			},
		},
		{
			name:    "non 2xx status",
			fetcher: &fakeFetcher{resp: crawler.FetchResponse{StatusCode: http.StatusNotFound}},
			check: func(t *testing.T, err error) {
				var fe *crawler.FetchError
				require.ErrorAs(t, err, &fe)
				require.Equal(t, http.StatusNotFound, fe.StatusCode)
			},
		},
		{
			name:    "empty content",
			fetcher: &fakeFetcher{resp: crawler.FetchResponse{StatusCode: http.StatusOK, Body: []byte("<html><body><nav>x</nav></body></html>")}},
			check: func(t *testing.T, err error) {
				var ee *crawler.EmptyContentError
				require.ErrorAs(t, err, &ee)
				require.Equal(t, "https://www.sim.edu.sg/p", ee.URL)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.fetcher, nil).Normalize(context.Background(), "https://www.sim.edu.sg/p")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
