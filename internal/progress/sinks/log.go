// Package sinks provides Emitter implementations for progress events.
package sinks

import (
	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/progress"
)

// LogSink emits structured logs for each progress event. It is useful during
// development or audits where a durable stream is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the emitter interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Emit logs the event using structured fields. Invalid events are logged at
// warn level rather than dropped silently.
func (s *LogSink) Emit(evt progress.Event) {
	fields := []zap.Field{
		zap.String("batch_id", evt.BatchID),
		zap.String("stage", string(evt.Stage)),
		zap.String("url", evt.URL),
		zap.String("host", evt.Host),
		zap.String("category", string(evt.Category)),
		zap.Int("tier", int(evt.Tier)),
		zap.String("status", string(evt.Status)),
		zap.Int64("bytes", evt.Bytes),
		zap.Duration("dur", evt.Dur),
		zap.String("note", evt.Note),
	}
	if err := evt.Validate(); err != nil {
		s.logger.Warn("invalid progress event", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("progress event", fields...)
}
