package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/rfsentry/rfsentry/internal/model"
)

// NATSSink publishes finding batches to a NATS subject for downstream
// persistence and live-stream delivery.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSSink creates a NATS-backed sink publishing on the given subject.
func NewNATSSink(conn *nats.Conn, subject string, logger *slog.Logger) *NATSSink {
	return &NATSSink{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Publish serializes the batch and publishes it with summary headers. Empty
// batches are skipped to keep the subject quiet during uneventful cycles.
func (s *NATSSink) Publish(_ context.Context, batch *model.FindingBatch) error {
	if batch.Empty() {
		return nil
	}
	if s.conn == nil || !s.conn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal finding batch: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-cycle-seq", strconv.FormatUint(batch.CycleSeq, 10))
	headers.Set("x-new", strconv.Itoa(len(batch.New)))
	headers.Set("x-confirmed", strconv.Itoa(len(batch.Confirmed)))
	headers.Set("x-resolved", strconv.Itoa(len(batch.Resolved)))

	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  headers,
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish finding batch: %w", err)
	}

	s.logger.Info("Published finding batch",
		"subject", s.subject,
		"cycle_seq", batch.CycleSeq,
		"new", len(batch.New),
		"confirmed", len(batch.Confirmed),
		"resolved", len(batch.Resolved))
	return nil
}
