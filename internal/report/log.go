package report

import (
	"context"

	"go.uber.org/zap"
)

// LogRecorder writes visits and summaries to zap.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder returns a recorder backed by logger.
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// RecordVisit logs one visit at info, or warn when it failed.
func (r *LogRecorder) RecordVisit(_ context.Context, v Visit) error {
	fields := []zap.Field{
		zap.String("run_id", v.RunID),
		zap.Int("index", v.Index),
		zap.String("url", v.URL),
		zap.String("outcome", string(v.Outcome)),
		zap.String("play_method", string(v.PlayMethod)),
		zap.Duration("duration", v.FinishedAt.Sub(v.StartedAt)),
	}
	if v.ScreenshotURI != "" {
		fields = append(fields, zap.String("screenshot", v.ScreenshotURI))
	}
	if v.Outcome == OutcomeFailed {
		fields = append(fields, zap.String("stage", v.Stage), zap.String("error", v.Error))
		r.logger.Warn("visit failed", fields...)
		return nil
	}
	r.logger.Info("visit finished", fields...)
	return nil
}

// RecordSummary logs the run totals.
func (r *LogRecorder) RecordSummary(_ context.Context, s Summary) error {
	r.logger.Info("run finished",
		zap.String("run_id", s.RunID),
		zap.Int("node_index", s.NodeIndex),
		zap.Int("node_total", s.NodeTotal),
		zap.Int("links", s.Links),
		zap.Bool("driver_started", s.DriverStarted),
		zap.Int("attempted", s.Attempted),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("played", s.Played),
		zap.Int("screenshots", s.Screenshots),
		zap.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)),
	)
	return nil
}
