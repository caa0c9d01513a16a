package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	models "online-market/model"
	"online-market/store"

	"github.com/shopspring/decimal"
)

// AddOrMergeLine puts qty units of a product into a cart. When the cart
// already holds the product the quantities are merged into the one line. The
// cart total grows by qty times the current price.
func (s *Service) AddOrMergeLine(ctx context.Context, cartID, productID int64, qty int) (models.CartLine, error) {
	if qty <= 0 {
		return models.CartLine{}, models.InvalidArgument("quantity must be > 0")
	}
	var line models.CartLine
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.GetCart(ctx, cartID)
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		existing, err := tx.FindCartLine(ctx, cartID, productID)
		switch {
		case err == nil:
			line = existing
		case errors.Is(err, models.ErrNotFound):
			line = models.CartLine{CartID: cartID, ProductID: productID}
		default:
			return err
		}

		merged := line.Quantity + qty
		if err := s.ledger.CheckAvailability(product, merged); err != nil {
			return err
		}
		line.Quantity = merged
		if line.ID == 0 {
			err = tx.InsertCartLine(ctx, &line)
		} else {
			err = tx.UpdateCartLine(ctx, line)
		}
		if err != nil {
			return err
		}
		return tx.UpdateCartTotal(ctx, cart.ID, cart.Total.Add(product.LineAmount(qty)))
	})
	if err != nil {
		return models.CartLine{}, err
	}
	s.log.Debug("cart line merged",
		slog.Int64("cart_id", cartID), slog.Int64("line_id", line.ID), slog.Int("quantity", line.Quantity))
	return line, nil
}

// UpdateLine overwrites a line's cart, product and quantity. The old line's
// amount leaves its old cart and the new amount is added to the new cart.
// An unknown line is NotFound; an unknown target cart or product is
// InvalidArgument.
func (s *Service) UpdateLine(ctx context.Context, lineID int64, upd LineUpdate) (models.CartLine, error) {
	switch {
	case upd.CartID <= 0:
		return models.CartLine{}, models.InvalidArgument("cart_id required")
	case upd.ProductID <= 0:
		return models.CartLine{}, models.InvalidArgument("product_id required")
	case upd.Quantity <= 0:
		return models.CartLine{}, models.InvalidArgument("quantity must be > 0")
	}
	current, err := s.store.GetCartLine(ctx, lineID)
	if err != nil {
		return models.CartLine{}, err
	}

	line := models.CartLine{ID: lineID, CartID: upd.CartID, ProductID: upd.ProductID, Quantity: upd.Quantity}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		carts, err := lockCarts(ctx, tx, current.CartID, upd.CartID)
		if err != nil {
			return missingRef(err)
		}
		old, err := tx.GetCartLine(ctx, lineID)
		if err != nil {
			return err
		}
		if old.CartID != current.CartID {
			return models.Conflict(fmt.Errorf("cart line %d moved while updating", lineID))
		}
		products, err := lockProducts(ctx, tx, old.ProductID, upd.ProductID)
		if err != nil {
			return missingRef(err)
		}
		next := products[upd.ProductID]
		if err := s.ledger.CheckAvailability(next, upd.Quantity); err != nil {
			return err
		}
		if old.CartID != upd.CartID || old.ProductID != upd.ProductID {
			dup, err := tx.FindCartLine(ctx, upd.CartID, upd.ProductID)
			if err == nil && dup.ID != lineID {
				return models.InvalidArgument("cart %d already has a line for product %d", upd.CartID, upd.ProductID)
			}
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return err
			}
		}
		if err := tx.UpdateCartLine(ctx, line); err != nil {
			return err
		}

		from := carts[old.CartID]
		from.Total = from.Total.Sub(products[old.ProductID].LineAmount(old.Quantity))
		carts[from.ID] = from
		to := carts[upd.CartID]
		to.Total = to.Total.Add(next.LineAmount(upd.Quantity))
		carts[to.ID] = to
		for _, c := range carts {
			if err := tx.UpdateCartTotal(ctx, c.ID, c.Total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.CartLine{}, err
	}
	return line, nil
}

// RemoveLine deletes a line and takes its amount off the cart total.
func (s *Service) RemoveLine(ctx context.Context, lineID int64) error {
	current, err := s.store.GetCartLine(ctx, lineID)
	if err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.GetCart(ctx, current.CartID)
		if err != nil {
			return err
		}
		line, err := tx.GetCartLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.CartID != cart.ID {
			return models.Conflict(fmt.Errorf("cart line %d moved while removing", lineID))
		}
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if err := tx.DeleteCartLine(ctx, lineID); err != nil {
			return err
		}
		return tx.UpdateCartTotal(ctx, cart.ID, cart.Total.Sub(product.LineAmount(line.Quantity)))
	})
}

// ListLines returns a cart's lines ordered by product. A cart without lines
// is reported as not found.
func (s *Service) ListLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	lines, err := s.store.GetCartLinesByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart %d has no lines", models.ErrNotFound, cartID)
	}
	return lines, nil
}

// ClearCart deletes every line of a cart and zeroes its total.
func (s *Service) ClearCart(ctx context.Context, cartID int64) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.GetCart(ctx, cartID)
		if err != nil {
			return err
		}
		n, err := tx.DeleteCartLinesByCart(ctx, cart.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: cart %d has no lines", models.ErrNotFound, cartID)
		}
		return tx.UpdateCartTotal(ctx, cart.ID, decimal.Zero)
	})
}

// missingRef reports a dangling cart or product reference in an update body
// as a bad argument rather than a missing resource.
func missingRef(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.InvalidArgument("%v", err)
	}
	return err
}

// lockCarts locks the carts in ascending id order.
func lockCarts(ctx context.Context, tx store.Tx, a, b int64) (map[int64]models.Cart, error) {
	if a > b {
		a, b = b, a
	}
	out := make(map[int64]models.Cart, 2)
	for _, id := range []int64{a, b} {
		if _, ok := out[id]; ok {
			continue
		}
		c, err := tx.GetCart(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, nil
}
