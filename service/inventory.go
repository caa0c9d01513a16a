package service

import (
	"context"

	models "online-market/model"
	"online-market/store"
)

// Ledger is the only code allowed to change a product's stock. Callers pass
// a product that was read through the same transaction, so the row is locked
// for the whole check-then-write.
type Ledger struct{}

// CheckAvailability reports whether qty units can be taken from p. It never
// mutates p.
func (Ledger) CheckAvailability(p models.Product, qty int) error {
	if p.Stock < qty {
		return &models.InsufficientStockError{ProductID: p.ID, Available: p.Stock, Requested: qty}
	}
	return nil
}

// Debit takes qty units from p and persists the new stock. p is updated in
// place once the write succeeded.
func (l Ledger) Debit(ctx context.Context, tx store.Tx, p *models.Product, qty int) error {
	if qty <= 0 {
		return models.InvalidArgument("debit quantity must be > 0")
	}
	if err := l.CheckAvailability(*p, qty); err != nil {
		return err
	}
	if err := tx.UpdateProductStock(ctx, p.ID, p.Stock-qty); err != nil {
		return err
	}
	p.Stock -= qty
	return nil
}

// Credit returns qty units to p.
func (Ledger) Credit(ctx context.Context, tx store.Tx, p *models.Product, qty int) error {
	if qty <= 0 {
		return models.InvalidArgument("credit quantity must be > 0")
	}
	if err := tx.UpdateProductStock(ctx, p.ID, p.Stock+qty); err != nil {
		return err
	}
	p.Stock += qty
	return nil
}
