package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sijan324/nepshop/internal/repository"
)

// CartEventEnvelope is the message published for every outbox record.
type CartEventEnvelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	CartID     string          `json:"cart_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Relay polls the outbox and publishes pending cart events in order. A record
// is marked published only after the broker accepted it, so delivery is at
// least once.
type Relay struct {
	outbox    repository.OutboxStore
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewRelay(outbox repository.OutboxStore, publisher Publisher, topic string, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	slog.Info("Outbox relay started", "topic", r.topic, "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox relay shutting down")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Outbox relay flush failed", "err", err)
			}
		}
	}
}

// Flush publishes one batch and returns how many records were delivered. It
// stops at the first publish failure to keep per-cart order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.outbox.PendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending events: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(records))
	var publishErr error
	for _, rec := range records {
		env := CartEventEnvelope{
			ID:         rec.ID,
			Type:       rec.EventType,
			CartID:     rec.CartID,
			OccurredAt: rec.CreatedAt,
			Payload:    json.RawMessage(rec.Payload),
		}
		if err := r.publisher.PublishEvent(ctx, r.topic, rec.CartID, env); err != nil {
			publishErr = fmt.Errorf("failed to publish %s %s: %w", rec.EventType, rec.ID, err)
			break
		}
		published = append(published, rec.ID)
	}

	if len(published) > 0 {
		if err := r.outbox.MarkPublished(ctx, published, r.now().UTC()); err != nil {
			return 0, fmt.Errorf("failed to mark events published: %w", err)
		}
		slog.Debug("Outbox relay published events", "count", len(published))
	}
	return len(published), publishErr
}
