package models

import "time"

const (
	EventOrderCreated   = "order.created"
	EventOrderLineAdded = "order.line_added"
)

// Event is an outbox row written in the same transaction as the change it describes.
type Event struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	Type      string     `json:"type"`
	Key       string     `json:"key"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}
