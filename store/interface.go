package store

import (
	"context"

	models "online-market/model"

	"github.com/shopspring/decimal"
)

// Store is the record store behind the market. Reads on Store take no locks;
// anything that reads in order to write goes through WithTx.
type Store interface {
	// WithTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back on any error or panic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	CreateProduct(ctx context.Context, p models.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)

	EnsureCart(ctx context.Context, userID int64) (models.Cart, error)
	GetCart(ctx context.Context, id int64) (models.Cart, error)
	GetCartByUser(ctx context.Context, userID int64) (models.Cart, error)
	GetCartLine(ctx context.Context, id int64) (models.CartLine, error)
	GetCartLinesByCart(ctx context.Context, cartID int64) ([]models.CartLine, error)

	GetOrder(ctx context.Context, id int64) (models.Order, error)
	// ListOrders filters by user when userID > 0.
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderLinesByOrder(ctx context.Context, orderID int64) ([]models.OrderLine, error)

	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventSent(ctx context.Context, id int64) error

	Close() error
}

// Tx is a unit of work. Every Get* locks the row it returns until the
// transaction ends.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (models.Product, error)
	UpdateProductStock(ctx context.Context, id int64, stock int) error

	GetCart(ctx context.Context, id int64) (models.Cart, error)
	UpdateCartTotal(ctx context.Context, id int64, total decimal.Decimal) error

	GetCartLine(ctx context.Context, id int64) (models.CartLine, error)
	// FindCartLine returns models.ErrNotFound when the cart has no line for the product.
	FindCartLine(ctx context.Context, cartID, productID int64) (models.CartLine, error)
	GetCartLinesByCart(ctx context.Context, cartID int64) ([]models.CartLine, error)
	InsertCartLine(ctx context.Context, line *models.CartLine) error
	UpdateCartLine(ctx context.Context, line models.CartLine) error
	DeleteCartLine(ctx context.Context, id int64) error
	DeleteCartLinesByCart(ctx context.Context, cartID int64) (int64, error)

	GetOrder(ctx context.Context, id int64) (models.Order, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, o models.Order) error
	// DeleteOrder removes the order together with its lines.
	DeleteOrder(ctx context.Context, id int64) error
	InsertOrderLine(ctx context.Context, line *models.OrderLine) error

	InsertEvent(ctx context.Context, ev *models.Event) error
}
