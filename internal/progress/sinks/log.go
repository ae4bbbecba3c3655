package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger; nil means no output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs every event in batch. Task failures log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL), zap.Int("attempt", evt.Attempt))
		}
		if evt.Wave > 0 {
			fields = append(fields, zap.Int("wave", evt.Wave))
		}
		if evt.StatusClass != "" {
			fields = append(fields, zap.String("status_class", string(evt.StatusClass)))
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageTaskFailed, progress.StageTaskRequeued:
			s.logger.Warn("crawl progress", fields...)
		default:
			s.logger.Info("crawl progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
