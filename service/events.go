package service

import (
	"encoding/json"
	"strconv"
	"time"

	models "online-market/model"

	"github.com/google/uuid"
)

type eventLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type orderEvent struct {
	OrderID    int64       `json:"order_id"`
	UserID     int64       `json:"user_id"`
	Status     string      `json:"status"`
	Total      string      `json:"total"`
	Lines      []eventLine `json:"lines"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// newOrderEvent builds the outbox row for an order change. Events are keyed
// by order id so a partitioned topic keeps one order's events in sequence.
func newOrderEvent(typ string, o models.Order, lines []models.OrderLine, at time.Time) (models.Event, error) {
	body := orderEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Total:      o.Total.StringFixed(2),
		Lines:      make([]eventLine, 0, len(lines)),
		OccurredAt: at.UTC(),
	}
	for _, l := range lines {
		body.Lines = append(body.Lines, eventLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return models.Event{}, err
	}
	return models.Event{
		EventID:   uuid.NewString(),
		Type:      typ,
		Key:       strconv.FormatInt(o.ID, 10),
		Payload:   payload,
		CreatedAt: at.UTC(),
	}, nil
}
