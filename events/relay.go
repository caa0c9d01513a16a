package events

import (
	"context"
	"log/slog"
	"time"

	models "online-market/model"
)

// Source is the outbox side of the store.
type Source interface {
	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventSent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Relay moves committed outbox events to a Publisher. Delivery is
// at-least-once: an event published but not yet marked is sent again on the
// next pass, and consumers dedupe on the event_id header.
type Relay struct {
	src      Source
	pub      Publisher
	log      *slog.Logger
	interval time.Duration
	batch    int
}

func NewRelay(src Source, pub Publisher, log *slog.Logger, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{src: src, pub: pub, log: log, interval: interval, batch: batch}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("outbox relay pass failed", slog.Any("error", err))
			}
		}
	}
}

// Drain publishes one batch in id order and returns how many events were
// marked sent. It stops at the first publish failure so later events of the
// same order are not delivered ahead of it.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	pending, err := r.src.PendingEvents(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, ev := range pending {
		if err := r.pub.Publish(ctx, ev); err != nil {
			return sent, err
		}
		if err := r.src.MarkEventSent(ctx, ev.ID); err != nil {
			return sent, err
		}
		sent++
		r.log.Debug("outbox event published",
			slog.String("event_id", ev.EventID), slog.String("type", ev.Type), slog.String("key", ev.Key))
	}
	return sent, nil
}
