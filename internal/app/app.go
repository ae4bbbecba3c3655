// Package app builds the program crawler's long-lived services from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/api"
	"github.com/JakeFAU/program-crawler/internal/assistant"
	"github.com/JakeFAU/program-crawler/internal/clock/system"
	"github.com/JakeFAU/program-crawler/internal/config"
	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/dispatcher"
	"github.com/JakeFAU/program-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/program-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/program-crawler/internal/hash/sha256"
	"github.com/JakeFAU/program-crawler/internal/id/uuid"
	"github.com/JakeFAU/program-crawler/internal/llm"
	"github.com/JakeFAU/program-crawler/internal/logging"
	"github.com/JakeFAU/program-crawler/internal/metrics"
	"github.com/JakeFAU/program-crawler/internal/normalize"
	"github.com/JakeFAU/program-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/program-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/program-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/program-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/program-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/program-crawler/internal/search"
	filestore "github.com/JakeFAU/program-crawler/internal/storage/file"
	gcsstorage "github.com/JakeFAU/program-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/program-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/program-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/program-crawler/internal/storage/postgres"
	"github.com/JakeFAU/program-crawler/internal/telemetry"
	"github.com/JakeFAU/program-crawler/internal/worker"
)

// ResultStore is what the app needs from the configured result backend.
type ResultStore interface {
	crawler.ResultStore
	search.RecordSource
	Reset(ctx context.Context) error
}

// App holds the wired services.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	results    ResultStore
	corpus     search.Corpus
	dispatcher *dispatcher.Dispatcher
	engine     *search.Engine
	index      search.Index
	assistant  *assistant.Assistant
	apiServer  *api.Server

	pool           *pgxpool.Pool
	gcsBlobs       *gcsstorage.BlobStore
	pubsub         *gcppublisher.Publisher
	progressHub    *progress.Hub
	tracerShutdown telemetry.Shutdown
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// WithLogger uses logger instead of building one from the logging section.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers progress collectors on reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// Build creates the application's dependencies. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx, o); err != nil {
		a.closeInfrastructure(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	var err error
	a.tracerShutdown, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:      a.cfg.Telemetry.Enabled,
		ServiceName:  a.cfg.Telemetry.ServiceName,
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
	}, a.logger.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}

	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	if err := a.setupResults(ctx); err != nil {
		return err
	}
	blobs, err := a.setupBlobs(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	emitter := a.setupProgress(o.registerer)

	llmLimiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.LLM.RatePerSecond,
		DefaultBurst: a.cfg.LLM.Burst,
	})
	chat := llm.New(llm.Config{
		BaseURL:      a.cfg.LLM.BaseURL,
		APIKey:       a.cfg.LLM.APIKey,
		Model:        a.cfg.LLM.Model,
		ShortTimeout: time.Duration(a.cfg.LLM.ShortTimeoutSeconds) * time.Second,
		LongTimeout:  time.Duration(a.cfg.LLM.LongTimeoutSeconds) * time.Second,
	}, llmLimiter, a.logger.Named("llm"))
	embedBase, embedKey, embedModel := a.cfg.EmbeddingEndpoint()
	embedder := llm.New(llm.Config{
		BaseURL:      embedBase,
		APIKey:       embedKey,
		Model:        embedModel,
		ShortTimeout: time.Duration(a.cfg.LLM.ShortTimeoutSeconds) * time.Second,
		LongTimeout:  time.Duration(a.cfg.LLM.LongTimeoutSeconds) * time.Second,
	}, llmLimiter, a.logger.Named("embedding"))

	a.setupDispatcher(chat, blobs, publisher, emitter)
	if err := a.setupSearch(ctx, chat, embedder); err != nil {
		return err
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Storage.Backend != "postgres" && a.cfg.Search.Backend != "postgres" {
		return nil
	}
	var err error
	a.pool, err = pgstore.Connect(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns), //nolint:gosec // bounded by config validation
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	a.logger.Info("postgres pool initialized", zap.Int("max_conns", a.cfg.DB.MaxConns))
	return nil
}

func (a *App) setupResults(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "postgres":
		store, err := pgstore.NewResultStore(a.pool, a.cfg.DB.ResultsTable)
		if err != nil {
			return fmt.Errorf("result store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("result store schema failed: %w", err)
		}
		a.results = store
		a.logger.Info("using postgres result store", zap.String("table", a.cfg.DB.ResultsTable))
	default:
		store, err := filestore.New(a.cfg.Storage.ResultsPath)
		if err != nil {
			return fmt.Errorf("result store init failed: %w", err)
		}
		a.results = store
		a.logger.Info("using file result store", zap.String("path", store.Path()))
	}
	return nil
}

func (a *App) setupBlobs(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.BlobBackend {
	case "gcs":
		store, err := gcsstorage.New(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsBlobs = store
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case "local":
		store, err := localstorage.New(a.cfg.Storage.LocalBaseDir)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Storage.LocalBaseDir))
		return store, nil
	case "memory":
		a.logger.Info("using in-memory artifact store")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if !a.cfg.Crawl.PublishNotifications {
		return nil, nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsub, err = gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.logger.Named("pubsub"))
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsub, nil
}

func (a *App) setupProgress(reg prometheus.Registerer) progress.Emitter {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return progress.Nop{}
	}
	var sinkList []progress.Sink
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.cfg.Progress.PrometheusSinks {
		sink, err := progresssinks.NewPrometheusSink(reg)
		if err != nil {
			a.logger.Warn("progress prometheus sink unavailable", zap.Error(err))
		} else {
			sinkList = append(sinkList, sink)
		}
	}
	if len(sinkList) == 0 {
		a.logger.Warn("progress tracking enabled but no sinks configured")
		return progress.Nop{}
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Int("sinks", len(sinkList)),
	)
	return a.progressHub
}

func (a *App) setupDispatcher(
	chat *llm.Client,
	blobs crawler.BlobStore,
	publisher crawler.Publisher,
	emitter progress.Emitter,
) {
	clock := system.New()
	fetchLimiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Fetch.RatePerSecond,
		DefaultBurst: a.cfg.Fetch.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.FetchTimeout(),
	}, fetchLimiter, a.logger.Named("fetcher"))
	normalizer := normalize.New(fetcher, a.logger.Named("normalize"), normalize.WithClock(clock))
	extractor := extract.NewExtractor(chat, a.cfg.LLM.MaxTokens, a.logger.Named("extract"))
	refiner := extract.NewRefiner(chat, extract.RefinerConfig{
		MaxRounds:   a.cfg.Refine.MaxAttempts,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		SchemaCheck: a.cfg.Refine.SchemaCheck,
	}, a.logger.Named("refine"))

	workerCfg := worker.Config{
		SaveArtifacts: a.cfg.Crawl.SaveArtifacts && blobs != nil,
		BlobPrefix:    a.cfg.Storage.Prefix,
	}
	deps := worker.Deps{
		Normalizer: normalizer,
		Extractor:  extractor,
		Refiner:    refiner,
		Blobs:      blobs,
		Hasher:     sha256.New(),
		Clock:      clock,
		Progress:   emitter,
	}
	runners := make([]dispatcher.Runner, 0, a.cfg.Crawl.Workers)
	for i := 0; i < a.cfg.Crawl.Workers; i++ {
		runners = append(runners, worker.New(deps, workerCfg, a.logger.Named("worker").With(zap.Int("index", i))))
	}
	a.logger.Info("worker pool configured",
		zap.Int("workers", a.cfg.Crawl.Workers),
		zap.Bool("save_artifacts", workerCfg.SaveArtifacts),
		zap.String("user_agent", a.cfg.Fetch.UserAgent),
	)

	dispatchOpts := []dispatcher.Option{
		dispatcher.WithProgress(emitter),
		dispatcher.WithIDGenerator(uuid.New()),
		dispatcher.WithClock(clock),
	}
	if publisher != nil {
		dispatchOpts = append(dispatchOpts, dispatcher.WithPublisher(publisher))
	}
	a.dispatcher = dispatcher.New(runners, a.results, dispatcher.Config{
		Policy: a.cfg.RetryPolicy(),
		Topic:  a.cfg.PubSub.TopicName,
	}, a.logger.Named("dispatcher"), dispatchOpts...)
}

func (a *App) setupSearch(ctx context.Context, chat *llm.Client, embedder *llm.Client) error {
	switch a.cfg.Search.Backend {
	case "postgres":
		corpus, err := pgstore.NewCorpus(a.pool, a.cfg.DB.DocumentsTable)
		if err != nil {
			return fmt.Errorf("corpus init failed: %w", err)
		}
		if err := corpus.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("corpus schema failed: %w", err)
		}
		a.corpus = corpus
	default:
		a.corpus = search.NewMemoryCorpus()
	}

	a.engine = search.NewEngine(a.corpus, embedder, chat, search.EngineConfig{
		TopK:      a.cfg.Search.TopK,
		CacheSize: a.cfg.Search.WeightCacheSize,
	}, a.logger.Named("search"))
	a.index = search.Index{
		Indexer: search.NewIndexer(embedder, nil, a.cfg.Embedding.BatchSize, a.logger.Named("indexer")),
		Source:  a.results,
		Corpus:  a.corpus,
	}
	a.assistant = assistant.New(chat, a.engine, a.logger.Named("assistant"))
	a.apiServer = api.NewServer(api.Deps{
		Search:    a.engine,
		Assistant: a.assistant,
		Index:     a.index,
		IDs:       uuid.New(),
		Ready:     a.ready,
	}, api.Config{
		RequestTimeout: time.Duration(a.cfg.Server.RequestTimeoutSeconds) * time.Second,
		AuthEnabled:    a.cfg.Auth.Enabled,
		APIKey:         a.cfg.Auth.APIKey,
	}, a.logger.Named("api"))
	return nil
}

// ready fails until the corpus holds documents.
func (a *App) ready(ctx context.Context) error {
	docs, err := a.corpus.Documents(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	if len(docs) == 0 {
		return errors.New("search corpus is empty")
	}
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Results returns the configured result store.
func (a *App) Results() ResultStore {
	return a.results
}

// Crawl resets the result store and runs every task to completion.
func (a *App) Crawl(ctx context.Context, tasks []crawler.CrawlTask) (crawler.RunSummary, error) {
	if err := a.results.Reset(ctx); err != nil {
		return crawler.RunSummary{}, fmt.Errorf("reset results: %w", err)
	}
	summary, err := a.dispatcher.Run(ctx, tasks)
	if err != nil {
		return summary, fmt.Errorf("crawl run: %w", err)
	}
	return summary, nil
}

// Reindex rebuilds the search corpus from the result store.
func (a *App) Reindex(ctx context.Context) (int, error) {
	n, err := a.index.Reindex(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return n, nil
}

// Serve runs the HTTP server until ctx ends, optionally indexing stored
// results first.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Search.IndexOnStartup {
		if n, err := a.Reindex(ctx); err != nil {
			a.logger.Warn("startup indexing failed, serving an empty corpus", zap.Error(err))
		} else {
			a.logger.Info("startup indexing complete", zap.Int("documents", n))
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases every resource the app opened.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsBlobs != nil {
		if err := a.gcsBlobs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
