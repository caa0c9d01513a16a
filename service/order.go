package service

import (
	"context"
	"log/slog"
	"strings"

	models "online-market/model"
	"online-market/store"

	"github.com/shopspring/decimal"
)

// AddProductToOrder appends a product to an existing order. Stock is debited
// through the ledger and qty times the current price is added to the order's
// frozen total.
func (s *Service) AddProductToOrder(ctx context.Context, orderID, productID int64, qty int) (models.OrderLine, error) {
	if qty <= 0 {
		return models.OrderLine{}, models.InvalidArgument("quantity must be > 0")
	}
	var line models.OrderLine
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		amount := product.LineAmount(qty)
		if err := s.ledger.Debit(ctx, tx, &product, qty); err != nil {
			return err
		}
		line = models.OrderLine{OrderID: order.ID, ProductID: product.ID, Quantity: qty}
		if err := tx.InsertOrderLine(ctx, &line); err != nil {
			return err
		}
		order.Total = order.Total.Add(amount)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		ev, err := newOrderEvent(models.EventOrderLineAdded, order, []models.OrderLine{line}, s.now())
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, &ev)
	})
	if err != nil {
		return models.OrderLine{}, err
	}
	s.metrics.StockDebited(qty)
	s.log.Info("product added to order",
		slog.Int64("order_id", orderID), slog.Int64("product_id", productID), slog.Int("quantity", qty))
	return line, nil
}

// RecomputeTotal overwrites an order's total with qty times unitPrice. The
// order's lines are not consulted.
func (s *Service) RecomputeTotal(ctx context.Context, orderID int64, qty int, unitPrice decimal.Decimal) (models.Order, error) {
	if qty < 0 {
		return models.Order{}, models.InvalidArgument("quantity cannot be negative")
	}
	if unitPrice.IsNegative() {
		return models.Order{}, models.InvalidArgument("unit price cannot be negative")
	}
	var order models.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if order, err = tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		order.Total = unitPrice.Mul(decimal.NewFromInt(int64(qty)))
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// CreateOrder records an order directly, without a cart. No stock moves.
func (s *Service) CreateOrder(ctx context.Context, in NewOrder) (models.Order, error) {
	if in.UserID <= 0 {
		return models.Order{}, models.InvalidArgument("user_id required")
	}
	if in.Total.IsNegative() {
		return models.Order{}, models.InvalidArgument("total cannot be negative")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = models.StatusPending
	}
	order := models.Order{
		UserID:        in.UserID,
		Status:        status,
		Description:   in.Description,
		PaymentMethod: in.PaymentMethod,
		City:          in.City,
		Province:      in.Province,
		Country:       in.Country,
		Total:         in.Total,
		CreatedAt:     s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertOrder(ctx, &order)
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// ListOrders returns all orders, or one user's when userID > 0.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	if userID < 0 {
		return nil, models.InvalidArgument("invalid user_id %d", userID)
	}
	return s.store.ListOrders(ctx, userID)
}

// DeleteOrder removes an order and its lines. Debited stock is not returned.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetOrder(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("order deleted", slog.Int64("order_id", id))
	return nil
}

func (s *Service) ListOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.GetOrderLinesByOrder(ctx, orderID)
}

// UpdateOrderDetails replaces an order's descriptive fields. An empty status
// keeps the current one.
func (s *Service) UpdateOrderDetails(ctx context.Context, orderID int64, d OrderDetails) (models.Order, error) {
	var order models.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if order, err = tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		if st := strings.TrimSpace(d.Status); st != "" {
			order.Status = st
		}
		order.Description = d.Description
		order.PaymentMethod = d.PaymentMethod
		order.City = d.City
		order.Province = d.Province
		order.Country = d.Country
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}
