package store

import (
	"context"

	models "online-market/model"
)

const (
	qInsertEvent   = `INSERT INTO outbox_events (event_id, type, key, payload, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	qPendingEvents = `SELECT id, event_id, type, key, payload, created_at FROM outbox_events WHERE sent_at IS NULL ORDER BY id LIMIT $1`
	qMarkSent      = `UPDATE outbox_events SET sent_at = now() WHERE id = $1`
)

func (t *pgTx) InsertEvent(ctx context.Context, ev *models.Event) error {
	err := t.q.QueryRowContext(ctx, qInsertEvent, ev.EventID, ev.Type, ev.Key, string(ev.Payload), ev.CreatedAt).Scan(&ev.ID)
	return mapErr(err)
}

// PendingEvents returns unsent outbox rows, oldest first. A limit <= 0
// returns all of them.
func (s *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var lim any // LIMIT NULL means no limit
	if limit > 0 {
		lim = limit
	}
	rows, err := s.DB.QueryContext(ctx, qPendingEvents, lim)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Type, &ev.Key, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkEventSent(ctx context.Context, id int64) error {
	return execOne(ctx, s.DB, "event", id, qMarkSent, id)
}
