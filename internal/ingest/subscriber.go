package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/rfsentry/rfsentry/internal/correlate"
	"github.com/rfsentry/rfsentry/internal/model"
)

// Subscriber receives raw scan snapshots from the external scan driver over
// NATS and drives one engine cycle per message. The scan interval is owned
// by the driver; the engine just reacts.
type Subscriber struct {
	nc      *nats.Conn
	engine  *correlate.Engine
	subject string
	queue   string
	logger  *slog.Logger

	sub *nats.Subscription
}

// NewSubscriber creates a snapshot subscriber.
func NewSubscriber(nc *nats.Conn, engine *correlate.Engine, subject, queue string, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		nc:      nc,
		engine:  engine,
		subject: subject,
		queue:   queue,
		logger:  logger,
	}
}

// Run subscribes and blocks until the context is cancelled, then drains the
// subscription so an in-flight cycle finishes its detection and merge
// instead of being cut off mid-bookkeeping.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		s.handleSnapshot(ctx, msg)
	})
	if err != nil {
		s.logger.Error("Failed to subscribe to scan snapshots", "subject", s.subject, "error", err)
		return err
	}
	s.sub = sub
	s.logger.Info("Subscribed to scan snapshots", "subject", s.subject, "queue", s.queue)

	<-ctx.Done()

	s.logger.Info("Draining scan subscription")
	if err := sub.Drain(); err != nil {
		s.logger.Error("Error draining scan subscription", "error", err)
		return err
	}
	return nil
}

func (s *Subscriber) handleSnapshot(ctx context.Context, msg *nats.Msg) {
	var snap model.Snapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		s.logger.Warn("Discarding malformed snapshot message", "subject", msg.Subject, "error", err)
		return
	}

	// An empty snapshot is a valid, uneventful cycle: grace-period and
	// eviction bookkeeping still have to advance.
	if _, err := s.engine.RunCycle(ctx, snap); err != nil {
		s.logger.Error("Scan cycle completed with publish error", "error", err)
	}
}
