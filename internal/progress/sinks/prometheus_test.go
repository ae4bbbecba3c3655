package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/program-crawler/internal/progress"
)

func runBatch(run uuid.UUID) []progress.Event {
	now := time.Now()
	return []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageRunStart},
		{RunID: run, TS: now, Stage: progress.StageRunStart},
		{
			RunID: run, TS: now, Stage: progress.StageFetchDone, Site: "www.sim.edu.sg",
			URL: "https://www.sim.edu.sg/p", Attempt: 1, Bytes: 2048,
			StatusClass: progress.Status2xx, Dur: 300 * time.Millisecond,
		},
		{RunID: run, TS: now, Stage: progress.StageTaskRequeued, URL: "https://www.sim.edu.sg/q", Attempt: 1, Note: "boom"},
		{RunID: run, TS: now, Stage: progress.StageTaskDone, URL: "https://www.sim.edu.sg/p", Attempt: 1},
		{RunID: run, TS: now, Stage: progress.StageTaskFailed, URL: "https://www.sim.edu.sg/q", Attempt: 5},
		{RunID: run, TS: now, Stage: progress.StageRunDone, Wave: 5, Dur: 40 * time.Second},
	}
}

func TestPrometheusSinkRecordsRun(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), runBatch(uuid.New())))

	require.InDelta(t, 2.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.taskOutcomes.WithLabelValues("done")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.taskOutcomes.WithLabelValues("requeued")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.taskOutcomes.WithLabelValues("failed")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("www.sim.edu.sg", "2xx")), 1e-9)
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("www.sim.edu.sg")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "progress_run_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), runBatch(uuid.New())))
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t, 7, logs.Len())
	require.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
	requeued := logs.FilterField(zap.String("note", "boom")).All()
	require.Len(t, requeued, 1)
	require.Equal(t, "TASK_REQUEUED", requeued[0].ContextMap()["stage"])
}
