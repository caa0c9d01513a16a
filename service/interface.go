package service

import (
	"context"

	models "online-market/model"

	"github.com/shopspring/decimal"
)

type ServiceInterface interface {
	CreateProduct(ctx context.Context, in NewProduct) (models.Product, error)
	GetProduct(ctx context.Context, id int64) (models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	Restock(ctx context.Context, productID int64, qty int) (models.Product, error)

	EnsureCart(ctx context.Context, userID int64) (models.Cart, error)
	GetCart(ctx context.Context, id int64) (models.Cart, error)
	GetCartByUser(ctx context.Context, userID int64) (models.Cart, error)
	GetCartLine(ctx context.Context, id int64) (models.CartLine, error)
	AddOrMergeLine(ctx context.Context, cartID, productID int64, qty int) (models.CartLine, error)
	UpdateLine(ctx context.Context, lineID int64, upd LineUpdate) (models.CartLine, error)
	RemoveLine(ctx context.Context, lineID int64) error
	ListLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	ClearCart(ctx context.Context, cartID int64) error

	Checkout(ctx context.Context, req CheckoutRequest) (models.Order, error)

	CreateOrder(ctx context.Context, in NewOrder) (models.Order, error)
	GetOrder(ctx context.Context, id int64) (models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	ListOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error)
	UpdateOrderDetails(ctx context.Context, orderID int64, d OrderDetails) (models.Order, error)
	AddProductToOrder(ctx context.Context, orderID, productID int64, qty int) (models.OrderLine, error)
	RecomputeTotal(ctx context.Context, orderID int64, qty int, unitPrice decimal.Decimal) (models.Order, error)
}

var _ ServiceInterface = (*Service)(nil)
