package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"online-market/metrics"
	models "online-market/model"
	"online-market/store"

	"github.com/shopspring/decimal"
)

// IdempotencyKeys remembers which checkout produced an order for a client key.
// Reserve reports reserved=true when the caller owns the key; otherwise
// orderID is the order a previous attempt created, or 0 while that attempt is
// still running.
type IdempotencyKeys interface {
	Reserve(ctx context.Context, key string) (orderID int64, reserved bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

type Service struct {
	store   store.Store
	ledger  Ledger
	log     *slog.Logger
	metrics *metrics.Metrics
	keys    IdempotencyKeys
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithIdempotency(k IdempotencyKeys) Option { return func(s *Service) { s.keys = k } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{store: s, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ---- catalog ----

func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return models.Product{}, models.InvalidArgument("name required")
	}
	if !in.Price.IsPositive() {
		return models.Product{}, models.InvalidArgument("price must be > 0")
	}
	if in.Stock < 0 {
		return models.Product{}, models.InvalidArgument("stock cannot be negative")
	}
	id, err := s.store.CreateProduct(ctx, models.Product{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		Stock:       in.Stock,
	})
	if err != nil {
		return models.Product{}, err
	}
	return s.store.GetProduct(ctx, id)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

// Restock credits qty units back to a product through the ledger.
func (s *Service) Restock(ctx context.Context, productID int64, qty int) (models.Product, error) {
	var p models.Product
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.GetProduct(ctx, productID); err != nil {
			return err
		}
		return s.ledger.Credit(ctx, tx, &p, qty)
	})
	if err != nil {
		return models.Product{}, err
	}
	s.log.Info("product restocked", slog.Int64("product_id", p.ID), slog.Int("quantity", qty), slog.Int("stock", p.Stock))
	return p, nil
}

// ---- carts ----

func (s *Service) EnsureCart(ctx context.Context, userID int64) (models.Cart, error) {
	if userID <= 0 {
		return models.Cart{}, models.InvalidArgument("user_id required")
	}
	return s.store.EnsureCart(ctx, userID)
}

func (s *Service) GetCart(ctx context.Context, id int64) (models.Cart, error) {
	return s.store.GetCart(ctx, id)
}

func (s *Service) GetCartByUser(ctx context.Context, userID int64) (models.Cart, error) {
	return s.store.GetCartByUser(ctx, userID)
}

func (s *Service) GetCartLine(ctx context.Context, id int64) (models.CartLine, error) {
	return s.store.GetCartLine(ctx, id)
}

// lockProducts locks every id in ascending order so concurrent transactions
// touching the same products queue instead of deadlocking.
func lockProducts(ctx context.Context, tx store.Tx, ids ...int64) (map[int64]models.Product, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make(map[int64]models.Product, len(sorted))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, models.ErrEmptyCart):
		return metrics.OutcomeEmptyCart
	case errors.Is(err, models.ErrInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case errors.Is(err, models.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, models.ErrInvalidArgument):
		return metrics.OutcomeInvalid
	case errors.Is(err, models.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}

// DTOs

type NewProduct struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// LineUpdate replaces every field of a cart line. Zero ids count as missing.
type LineUpdate struct {
	CartID    int64 `json:"cart_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CheckoutRequest struct {
	CartID         int64  `json:"cart_id"`
	UserID         int64  `json:"user_id"`
	PaymentMethod  string `json:"payment_method"`
	Description    string `json:"description"`
	City           string `json:"city"`
	Province       string `json:"province"`
	Country        string `json:"country"`
	IdempotencyKey string `json:"-"`
}

type NewOrder struct {
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method"`
	City          string          `json:"city"`
	Province      string          `json:"province"`
	Country       string          `json:"country"`
	Total         decimal.Decimal `json:"total"`
}

// OrderDetails are the order fields a client may edit. The total is not one of them.
type OrderDetails struct {
	Status        string `json:"status"`
	Description   string `json:"description"`
	PaymentMethod string `json:"payment_method"`
	City          string `json:"city"`
	Province      string `json:"province"`
	Country       string `json:"country"`
}
