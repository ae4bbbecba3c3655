// Package worker runs the per-URL crawl pipeline: fetch and normalize the
// page, extract a program document, then validate and refine it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/metrics"
	"github.com/JakeFAU/program-crawler/internal/progress"
)

// ErrEmptyLink is returned for listings without a usable program link.
var ErrEmptyLink = errors.New("listing has no program link")

// Config controls optional artifact capture.
type Config struct {
	SaveArtifacts bool
	BlobPrefix    string
}

// Handler receives the outcome of every dequeued task. A non-nil return
// stops the worker.
type Handler func(ctx context.Context, task crawler.CrawlTask, program crawler.ProgramInfo, err error) error

// Deps groups the pipeline stages and side channels a Worker needs. Refiner,
// Blobs, Hasher, Clock and Progress are optional.
type Deps struct {
	Normalizer crawler.Normalizer
	Extractor  crawler.Extractor
	Refiner    crawler.Refiner
	Blobs      crawler.BlobStore
	Hasher     crawler.Hasher
	Clock      crawler.Clock
	Progress   progress.Emitter
}

// Worker executes pipelines one task at a time.
type Worker struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/JakeFAU/program-crawler/internal/worker"),
		logger: logger,
	}
}

// Run dequeues tasks and hands each outcome to handle until the queue is
// closed and drained (nil), ctx ends, or handle fails.
func (w *Worker) Run(ctx context.Context, runID uuid.UUID, queue crawler.Queue, handle Handler) error {
	for {
		task, err := queue.Dequeue(ctx)
		if errors.Is(err, crawler.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dequeue task: %w", err)
		}

		metrics.IncActiveWorkers()
		program, perr := w.safeProcess(ctx, runID, task)
		metrics.DecActiveWorkers()

		if err := handle(ctx, task, program, perr); err != nil {
			return err
		}
	}
}

// safeProcess converts a pipeline panic into an ordinary retryable error.
func (w *Worker) safeProcess(ctx context.Context, runID uuid.UUID, task crawler.CrawlTask) (program crawler.ProgramInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pipeline panic", zap.String("url", task.URL), zap.Any("panic", r))
			program = crawler.ProgramInfo{}
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return w.Process(ctx, runID, task)
}

// Process runs the pipeline for one task. Steps run strictly in sequence and
// the first failure ends the attempt.
func (w *Worker) Process(ctx context.Context, runID uuid.UUID, task crawler.CrawlTask) (crawler.ProgramInfo, error) {
	ctx, span := w.tracer.Start(ctx, "crawl.task", trace.WithAttributes(
		attribute.String("crawl.url", task.URL),
		attribute.Int("crawl.attempt", task.Attempt),
		attribute.String("crawl.data_id", task.Listing.DataID),
	))
	defer span.End()

	program, err := w.process(ctx, runID, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return program, err
}

func (w *Worker) process(ctx context.Context, runID uuid.UUID, task crawler.CrawlTask) (crawler.ProgramInfo, error) {
	if strings.TrimSpace(task.URL) == "" {
		return crawler.ProgramInfo{}, &crawler.FetchError{URL: task.URL, Err: ErrEmptyLink}
	}
	w.emit(runID, task, progress.StageTaskStart, func(*progress.Event) {})

	target, err := w.normalize(ctx, runID, task)
	if err != nil {
		return crawler.ProgramInfo{}, err
	}
	w.saveArtifacts(ctx, runID, target)

	start := time.Now()
	candidate, err := w.stage(ctx, "crawl.extract", func(ctx context.Context) (crawler.ProgramInfo, error) {
		return w.deps.Extractor.Extract(ctx, target.NormalizedText)
	})
	if err != nil {
		return crawler.ProgramInfo{}, err
	}
	w.emit(runID, task, progress.StageExtractDone, func(e *progress.Event) { e.Dur = time.Since(start) })

	if w.deps.Refiner == nil {
		return candidate, nil
	}
	start = time.Now()
	refined, err := w.stage(ctx, "crawl.refine", func(ctx context.Context) (crawler.ProgramInfo, error) {
		return w.deps.Refiner.Refine(ctx, target.NormalizedText, candidate)
	})
	if err != nil {
		return crawler.ProgramInfo{}, err
	}
	w.emit(runID, task, progress.StageRefineDone, func(e *progress.Event) { e.Dur = time.Since(start) })
	return refined, nil
}

func (w *Worker) normalize(ctx context.Context, runID uuid.UUID, task crawler.CrawlTask) (crawler.ExtractionTarget, error) {
	ctx, span := w.tracer.Start(ctx, "crawl.normalize")
	defer span.End()

	start := time.Now()
	target, err := w.deps.Normalizer.Normalize(ctx, task.URL)
	status := target.StatusCode
	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) {
		status = fetchErr.StatusCode
	}
	w.emit(runID, task, progress.StageFetchDone, func(e *progress.Event) {
		e.StatusClass = progress.ClassifyStatus(status)
		e.Bytes = int64(len(target.RawHTML))
		e.Dur = time.Since(start)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return crawler.ExtractionTarget{}, fmt.Errorf("normalize page: %w", err)
	}
	span.SetAttributes(attribute.Int("crawl.text_chars", len(target.NormalizedText)))
	return target, nil
}

func (w *Worker) stage(
	ctx context.Context,
	name string,
	fn func(context.Context) (crawler.ProgramInfo, error),
) (crawler.ProgramInfo, error) {
	ctx, span := w.tracer.Start(ctx, name)
	defer span.End()
	program, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return program, err
}

// saveArtifacts stores the raw page and its cleaned text next to each other.
// Failures are logged and never fail the task.
func (w *Worker) saveArtifacts(ctx context.Context, runID uuid.UUID, target crawler.ExtractionTarget) {
	if !w.cfg.SaveArtifacts || w.deps.Blobs == nil || w.deps.Hasher == nil {
		return
	}
	digest, err := w.deps.Hasher.Hash(target.RawHTML)
	if err != nil {
		w.logger.Warn("hash page failed", zap.String("url", target.URL), zap.Error(err))
		return
	}
	base := w.artifactBase(runID, digest)
	uri, err := w.deps.Blobs.PutObject(ctx, base+".html", "text/html; charset=utf-8", target.RawHTML)
	if err != nil {
		w.logger.Warn("store page html failed", zap.String("url", target.URL), zap.Error(err))
		return
	}
	if _, err := w.deps.Blobs.PutObject(ctx, base+".txt", "text/plain; charset=utf-8", []byte(target.NormalizedText)); err != nil {
		w.logger.Warn("store page text failed", zap.String("url", target.URL), zap.Error(err))
		return
	}
	w.logger.Debug("artifacts stored", zap.String("url", target.URL), zap.String("uri", uri))
}

func (w *Worker) artifactBase(runID uuid.UUID, digest string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s", runID, digest)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, runID, digest)
}

func (w *Worker) emit(runID uuid.UUID, task crawler.CrawlTask, stage progress.Stage, fill func(*progress.Event)) {
	evt := progress.Event{
		RunID:   runID,
		TS:      w.now(),
		Stage:   stage,
		Site:    metrics.SanitizeSite(task.URL),
		URL:     task.URL,
		Attempt: task.Attempt,
	}
	fill(&evt)
	w.deps.Progress.Emit(evt)
}

func (w *Worker) now() time.Time {
	if w.deps.Clock != nil {
		return w.deps.Clock.Now()
	}
	return time.Now().UTC()
}
