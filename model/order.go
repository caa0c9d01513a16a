package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusPending is the only status the checkout assigns.
const StatusPending = "Pending"

// Order is a sales ticket. Total is frozen when written and is never derived
// from the order's lines.
type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	City          string          `json:"city,omitempty"`
	Province      string          `json:"province,omitempty"`
	Country       string          `json:"country,omitempty"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderLine records what was sold. It carries no price of its own.
type OrderLine struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
