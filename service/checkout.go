package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	models "online-market/model"
	"online-market/store"

	"github.com/shopspring/decimal"
)

// Checkout converts a user's cart into a Pending order in one transaction:
// every line is validated against stock before anything is written, stock is
// debited, order lines are recorded, the cart is emptied and an
// order.created event is queued. Any failure leaves every record untouched.
//
// The order belongs to req.UserID, not to the cart's owner. The cart row is
// locked first, so a second checkout of the same cart waits and then finds
// the cart empty.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (models.Order, error) {
	if req.IdempotencyKey == "" || s.keys == nil {
		return s.checkout(ctx, req)
	}

	key := fmt.Sprintf("checkout:%d:%s", req.CartID, req.IdempotencyKey)
	orderID, reserved, err := s.keys.Reserve(ctx, key)
	if err != nil {
		return models.Order{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !reserved {
		if orderID > 0 {
			s.log.Info("checkout replayed", slog.String("key", key), slog.Int64("order_id", orderID))
			return s.store.GetOrder(ctx, orderID)
		}
		return models.Order{}, models.Conflict(fmt.Errorf("checkout with key %q is in progress", req.IdempotencyKey))
	}

	order, err := s.checkout(ctx, req)
	if err != nil {
		if rerr := s.keys.Release(ctx, key); rerr != nil {
			s.log.Warn("release idempotency key", slog.String("key", key), slog.Any("error", rerr))
		}
		return models.Order{}, err
	}
	s.completeKey(ctx, key, order.ID)
	return order, nil
}

// completeRetryDelay is the pause before the second Complete attempt.
var completeRetryDelay = 50 * time.Millisecond

// completeKey records the committed order against key. The order already
// exists, so a failed attempt is retried once, detached from the request's
// cancellation. If both fail the key stays pending until its TTL runs out.
func (s *Service) completeKey(ctx context.Context, key string, orderID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second+completeRetryDelay)
	defer cancel()

	err := s.keys.Complete(ctx, key, orderID)
	if err == nil {
		return
	}
	s.log.Debug("complete idempotency key, retrying", slog.String("key", key), slog.Any("error", err))
	time.Sleep(completeRetryDelay)
	if err = s.keys.Complete(ctx, key, orderID); err != nil {
		s.log.Warn("complete idempotency key", slog.String("key", key), slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (models.Order, error) {
	if req.CartID <= 0 {
		return models.Order{}, models.InvalidArgument("cart_id required")
	}
	if req.UserID <= 0 {
		return models.Order{}, models.InvalidArgument("user_id required")
	}

	var (
		order models.Order
		units int
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.GetCart(ctx, req.CartID)
		if err != nil {
			return err
		}
		lines, err := tx.GetCartLinesByCart(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return models.ErrEmptyCart
		}

		ids := make([]int64, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		products, err := lockProducts(ctx, tx, ids...)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, l := range lines {
			p := products[l.ProductID]
			if err := s.ledger.CheckAvailability(p, l.Quantity); err != nil {
				return err
			}
			total = total.Add(p.LineAmount(l.Quantity))
		}

		order = models.Order{
			UserID:        req.UserID,
			Status:        models.StatusPending,
			Description:   req.Description,
			PaymentMethod: req.PaymentMethod,
			City:          req.City,
			Province:      req.Province,
			Country:       req.Country,
			Total:         total,
			CreatedAt:     s.now().UTC(),
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		orderLines := make([]models.OrderLine, 0, len(lines))
		for _, l := range lines {
			p := products[l.ProductID]
			if err := s.ledger.Debit(ctx, tx, &p, l.Quantity); err != nil {
				return err
			}
			products[p.ID] = p
			ol := models.OrderLine{OrderID: order.ID, ProductID: l.ProductID, Quantity: l.Quantity}
			if err := tx.InsertOrderLine(ctx, &ol); err != nil {
				return err
			}
			orderLines = append(orderLines, ol)
			units += l.Quantity
		}

		if _, err := tx.DeleteCartLinesByCart(ctx, cart.ID); err != nil {
			return err
		}
		if err := tx.UpdateCartTotal(ctx, cart.ID, decimal.Zero); err != nil {
			return err
		}

		ev, err := newOrderEvent(models.EventOrderCreated, order, orderLines, order.CreatedAt)
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, &ev)
	})

	s.metrics.Checkout(checkoutOutcome(err))
	if err != nil {
		s.log.Info("checkout rejected",
			slog.Int64("cart_id", req.CartID), slog.Int64("user_id", req.UserID), slog.Any("error", err))
		return models.Order{}, err
	}
	s.metrics.StockDebited(units)
	s.log.Info("checkout completed",
		slog.Int64("order_id", order.ID), slog.Int64("cart_id", req.CartID),
		slog.String("total", order.Total.StringFixed(2)), slog.Int("units", units))
	return order, nil
}
