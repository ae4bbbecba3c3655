// Package dispatcher drives a crawl run: it fans tasks out to a fixed pool of
// workers in waves, requeues failures until they succeed or exhaust the
// attempt cap, and records exactly one result per task.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/metrics"
	"github.com/JakeFAU/program-crawler/internal/progress"
	"github.com/JakeFAU/program-crawler/internal/queue/memory"
	"github.com/JakeFAU/program-crawler/internal/worker"
)

// Runner drains a queue, reporting each task outcome to handle.
// *worker.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context, runID uuid.UUID, queue crawler.Queue, handle worker.Handler) error
}

// Config tunes a Dispatcher.
type Config struct {
	Policy crawler.RetryPolicy
	// Topic receives one notification per finished task when a publisher is set.
	Topic string
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher sends completion notifications through p.
func WithPublisher(p crawler.Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithProgress routes run and task events to e.
func WithProgress(e progress.Emitter) Option {
	return func(d *Dispatcher) { d.progress = e }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(d *Dispatcher) { d.ids = ids }
}

// WithClock overrides the time source used for events and notifications.
func WithClock(c crawler.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// Dispatcher runs crawl waves over a worker pool.
type Dispatcher struct {
	workers   []Runner
	store     crawler.ResultStore
	publisher crawler.Publisher
	progress  progress.Emitter
	ids       crawler.IDGenerator
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

// New builds a Dispatcher. A zero Policy falls back to crawler.DefaultRetryPolicy.
func New(workers []Runner, store crawler.ResultStore, cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = crawler.DefaultRetryPolicy()
	}
	d := &Dispatcher{
		workers:  workers,
		store:    store,
		progress: progress.Nop{},
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run holds the mutable state of one Run call.
type run struct {
	id      uuid.UUID
	mu      sync.Mutex
	retry   []crawler.CrawlTask
	summary crawler.RunSummary
}

// Run crawls every task and returns once each has a record in the store.
// It fails early only when the store rejects a write or ctx ends; in that
// case the summary reflects the records written so far.
func (d *Dispatcher) Run(ctx context.Context, tasks []crawler.CrawlTask) (crawler.RunSummary, error) {
	if len(d.workers) == 0 {
		return crawler.RunSummary{}, errors.New("dispatcher has no workers")
	}
	runID, err := d.newRunID()
	if err != nil {
		return crawler.RunSummary{}, err
	}
	started := time.Now()
	r := &run{id: runID}
	r.summary.RunID = runID.String()
	r.summary.Total = len(tasks)

	pending := make([]crawler.CrawlTask, 0, len(tasks))
	for _, task := range tasks {
		task.Attempt = 1
		task.State = crawler.TaskPending
		pending = append(pending, task)
	}

	logger := d.logger.With(zap.String("run_id", r.summary.RunID))
	logger.Info("crawl run started", zap.Int("tasks", len(tasks)), zap.Int("workers", len(d.workers)))
	d.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})

	for len(pending) > 0 {
		r.summary.Waves++
		if r.summary.Waves > 1 {
			delay := d.cfg.Policy.Backoff(r.summary.Waves - 1)
			logger.Info("waiting before retry wave", zap.Int("wave", r.summary.Waves), zap.Int("tasks", len(pending)), zap.Duration("delay", delay))
			if err := d.sleep(ctx, delay); err != nil {
				return d.finish(r, started), fmt.Errorf("wait for wave %d: %w", r.summary.Waves, err)
			}
		}
		d.emit(progress.Event{RunID: runID, Stage: progress.StageWaveStart, Wave: r.summary.Waves})
		if err := d.runWave(ctx, r, pending); err != nil {
			return d.finish(r, started), err
		}
		pending, r.retry = r.retry, nil
	}

	summary := d.finish(r, started)
	logger.Info("crawl run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("waves", summary.Waves),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (d *Dispatcher) runWave(ctx context.Context, r *run, tasks []crawler.CrawlTask) error {
	queue := memory.NewQueue(len(tasks))
	for _, task := range tasks {
		task.State = crawler.TaskRunning
		if err := queue.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue wave %d: %w", r.summary.Waves, err)
		}
	}
	queue.Close()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx, r.id, queue, func(ctx context.Context, task crawler.CrawlTask, program crawler.ProgramInfo, err error) error {
				return d.complete(ctx, r, task, program, err)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("wave %d: %w", r.summary.Waves, err)
	}
	return nil
}

// complete turns one pipeline outcome into a stored record or a requeued task.
func (d *Dispatcher) complete(ctx context.Context, r *run, task crawler.CrawlTask, program crawler.ProgramInfo, perr error) error {
	if perr != nil && !d.cfg.Policy.Exhausted(task.Attempt) {
		d.logger.Warn("task failed, requeued",
			zap.String("url", task.URL),
			zap.Int("attempt", task.Attempt),
			zap.Error(perr),
		)
		d.emitTask(r, task, progress.StageTaskRequeued, perr.Error())
		metrics.ObserveTask(string(crawler.TaskRequeued))
		task.Attempt++
		task.State = crawler.TaskRequeued
		task.LastErr = perr
		r.mu.Lock()
		r.retry = append(r.retry, task)
		r.mu.Unlock()
		return nil
	}

	record := crawler.NewSuccessRecord(task.Listing, program)
	task.State = crawler.TaskSucceeded
	stage := progress.StageTaskDone
	note := ""
	if perr != nil {
		record = crawler.NewFailureRecord(task.Listing, crawler.PermanentFailureMessage(d.cfg.Policy.MaxAttempts))
		task.State = crawler.TaskPermanentlyFailed
		stage = progress.StageTaskFailed
		note = perr.Error()
		d.logger.Error("task permanently failed",
			zap.String("url", task.URL),
			zap.Int("attempt", task.Attempt),
			zap.Error(fmt.Errorf("%w: %w", crawler.ErrPermanentFailure, perr)),
		)
	}

	// Records already earned are written even while the run is being canceled.
	if err := d.store.Append(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("append result for %s: %w", task.URL, err)
	}

	r.mu.Lock()
	if task.State == crawler.TaskSucceeded {
		r.summary.Succeeded++
	} else {
		r.summary.Failed++
	}
	r.mu.Unlock()

	metrics.ObserveTask(string(task.State))
	d.emitTask(r, task, stage, note)
	d.notify(ctx, r, task)
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, r *run, task crawler.CrawlTask) {
	if d.publisher == nil || d.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":       r.summary.RunID,
		"data_id":      task.Listing.DataID,
		"program_name": task.Listing.ProgramName,
		"url":          task.URL,
		"state":        string(task.State),
		"attempt":      task.Attempt,
		"timestamp":    d.now().Format(time.RFC3339),
	}
	if _, err := d.publisher.Publish(ctx, d.cfg.Topic, payload); err != nil {
		d.logger.Warn("publish task notification failed", zap.String("url", task.URL), zap.Error(err))
	}
}

func (d *Dispatcher) finish(r *run, started time.Time) crawler.RunSummary {
	r.summary.Duration = time.Since(started)
	d.emit(progress.Event{RunID: r.id, Stage: progress.StageRunDone, Wave: r.summary.Waves, Dur: r.summary.Duration})
	return r.summary
}

func (d *Dispatcher) emitTask(r *run, task crawler.CrawlTask, stage progress.Stage, note string) {
	d.emit(progress.Event{
		RunID:   r.id,
		Stage:   stage,
		Site:    metrics.SanitizeSite(task.URL),
		URL:     task.URL,
		Attempt: task.Attempt,
		Note:    note,
	})
}

func (d *Dispatcher) emit(evt progress.Event) {
	evt.TS = d.now()
	d.progress.Emit(evt)
}

func (d *Dispatcher) newRunID() (uuid.UUID, error) {
	if d.ids != nil {
		id, err := d.ids.NewRunID()
		if err != nil {
			return uuid.Nil, fmt.Errorf("new run id: %w", err)
		}
		return id, nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("new run id: %w", err)
	}
	return id, nil
}

func (d *Dispatcher) now() time.Time {
	if d.clock != nil {
		return d.clock.Now()
	}
	return time.Now().UTC()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
