// Package sinks contains progress.Sink implementations for observers.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mkarpis/linkmind/internal/progress"
)

// LogSink emits structured logs for each status change. Useful during
// development and as the default console observer.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("link_id", evt.LinkID),
			zap.String("old", string(evt.Old)),
			zap.String("new", string(evt.New)),
			zap.Time("ts", evt.TS),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("status change", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error { return nil }
