package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/program-crawler/internal/progress"
)

// PrometheusSink turns progress events into run and task collectors.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsRunning  prometheus.Gauge
	runDuration  prometheus.Histogram
	waves        prometheus.Histogram
	taskOutcomes *prometheus.CounterVec

	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers the sink's collectors on reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_runs_running",
			Help: "Crawl runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "progress_run_duration_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		waves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "progress_run_waves",
			Help:    "Waves needed per finished crawl run.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_task_outcomes_total",
			Help: "Task completions partitioned by stage (done, requeued, failed).",
		}, []string{"stage"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_fetch_total",
			Help: "Page fetches partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_fetch_bytes_total",
			Help: "Page bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_fetch_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"site"}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsRunning, s.runDuration, s.waves,
		s.taskOutcomes, s.fetches, s.fetchBytes, s.fetchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume implements progress.Sink.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			if s.track(evt.RunID, false) {
				s.runsRunning.Dec()
			}
			if evt.Dur > 0 {
				s.runDuration.Observe(evt.Dur.Seconds())
			}
			if evt.Wave > 0 {
				s.waves.Observe(float64(evt.Wave))
			}
		case progress.StageTaskDone:
			s.taskOutcomes.WithLabelValues("done").Inc()
		case progress.StageTaskRequeued:
			s.taskOutcomes.WithLabelValues("requeued").Inc()
		case progress.StageTaskFailed:
			s.taskOutcomes.WithLabelValues("failed").Inc()
		case progress.StageFetchDone:
			s.observeFetch(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	s.fetches.WithLabelValues(site, string(evt.StatusClass)).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
	}
}

// track adds or removes id from the running set and reports whether the set
// changed.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		s.running[id] = struct{}{}
		return !ok
	}
	delete(s.running, id)
	return ok
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
