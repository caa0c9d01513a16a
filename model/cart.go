package models

import "github.com/shopspring/decimal"

type Cart struct {
	ID     int64           `json:"id"`
	UserID int64           `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
}

// CartLine is unique per (CartID, ProductID).
type CartLine struct {
	ID        int64 `json:"id"`
	CartID    int64 `json:"cart_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
