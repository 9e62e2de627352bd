package sink

import (
	"context"
	"log/slog"

	"github.com/rfsentry/rfsentry/internal/model"
)

// Sink receives the per-cycle finding batch. Persistence, live streaming and
// geolocation tagging all live behind this boundary, outside the engine.
type Sink interface {
	Publish(ctx context.Context, batch *model.FindingBatch) error
}

// LogSink writes batches to the structured log. It is the fallback sink when
// no message bus is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs a summary line per finding.
func (s *LogSink) Publish(_ context.Context, batch *model.FindingBatch) error {
	for _, f := range batch.New {
		s.logger.Info("New finding",
			"finding_id", f.ID,
			"type", f.Type,
			"severity", f.Severity,
			"subject_bssid", f.SubjectBSSID,
			"confidence", f.Confidence)
	}
	for _, f := range batch.Confirmed {
		s.logger.Debug("Finding re-confirmed",
			"finding_id", f.ID,
			"type", f.Type,
			"last_confirmed_at", f.LastConfirmedAt)
	}
	for _, f := range batch.Resolved {
		s.logger.Info("Finding resolved",
			"finding_id", f.ID,
			"type", f.Type,
			"subject_bssid", f.SubjectBSSID)
	}
	return nil
}

// MultiSink fans one batch out to several sinks; a failing sink does not
// stop the others.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(logger *slog.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Publish delivers the batch to every sink, logging failures.
func (s *MultiSink) Publish(ctx context.Context, batch *model.FindingBatch) error {
	var lastErr error
	for _, sub := range s.sinks {
		if err := sub.Publish(ctx, batch); err != nil {
			s.logger.Error("Sink publish failed", "error", err)
			lastErr = err
		}
	}
	return lastErr
}
