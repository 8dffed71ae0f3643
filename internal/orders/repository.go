package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// LineInput is one requested order line as submitted by the client.
type LineInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)

	// DecrementStock reduces stock by qty only if current stock >= qty, as a
	// single indivisible operation, and returns the unit price in effect at
	// decrement time. Fails with *ProductNotFoundError or
	// *InsufficientStockError.
	DecrementStock(ctx context.Context, id string, qty int) (decimal.Decimal, error)

	// AddStock is the explicit restock operation.
	AddStock(ctx context.Context, id string, qty int) error
}

type OrderRepository interface {
	// Create persists the order with its items. Returns ErrDuplicateToken if
	// the idempotency key is already taken.
	Create(ctx context.Context, o *Order) error
	GetByToken(ctx context.Context, token string) (*Order, error)
	// List returns all orders, most recent first, items nested.
	List(ctx context.Context) ([]Order, error)
}

// TxManager runs fn as one atomic unit: every repository call made with the
// ctx passed to fn either commits together or rolls back together.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
