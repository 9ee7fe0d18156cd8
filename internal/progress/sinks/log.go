package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/progress"
)

// LogSink logs run boundaries at info and study outcomes at debug.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Stage {
		case progress.StageStudyDone:
			s.logger.Debug("study finished", append(fields,
				zap.String("study_id", evt.StudyID),
				zap.String("outcome", evt.Outcome),
			)...)
		case progress.StageRunStart:
			s.logger.Info("run progress started", append(fields, zap.Int("total", evt.Total))...)
		default:
			s.logger.Info("run progress finished", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
