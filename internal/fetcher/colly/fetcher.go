// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements crawler.Fetcher using the Colly collector. Each call is
// a single attempt; retries belong to the orchestrator.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       Limiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET using Colly. Non-2xx responses and
// transport failures come back as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return crawler.FetchResponse{}, &crawler.FetchError{URL: request.URL, Err: err}
		}
	}

	var (
		result   crawler.FetchResponse
		fetchErr *crawler.FetchError
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		metrics.ObserveCrawl(request.URL, statusLabel(err), 0)
		f.logger.Debug("fetch failed", zap.String("url", request.URL), zap.Error(err))
		return crawler.FetchResponse{}, err
	}
	metrics.ObserveCrawl(request.URL, fmt.Sprintf("%d", result.StatusCode), len(result.Body))
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return result, &crawler.FetchError{URL: request.URL, StatusCode: result.StatusCode}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr **crawler.FetchError,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	// Clones share visited-URL storage; retried tasks fetch the same page again.
	collector.AllowURLRevisit = true
	// Every status reaches OnResponse; Fetch classifies it.
	collector.ParseHTTPErrorResponse = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	if f.cfg.RespectRobots {
		collector.WithTransport(&robotsAwareTransport{base: baseTransport, logger: f.logger})
	} else {
		collector.WithTransport(baseTransport)
	}

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr **crawler.FetchError,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		fe := &crawler.FetchError{URL: request.URL, Err: err}
		if r != nil {
			fe.StatusCode = r.StatusCode
		}
		*fetchErr = fe
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr **crawler.FetchError) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &crawler.FetchError{URL: url, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return &crawler.FetchError{URL: url, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func statusLabel(err error) string {
	var fe *crawler.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fmt.Sprintf("%d", fe.StatusCode)
	}
	return "error"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
