package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateToken is returned by OrderRepository.Create when another
	// order already holds the idempotency key. The service resolves it by
	// re-fetching the winning order; callers never see it.
	ErrDuplicateToken = errors.New("idempotency key already used")
)

// ValidationError rejects a malformed request before any transaction starts.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

// InsufficientStockError aborts the whole placement attempt; it names the
// first product whose conditional decrement failed.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}
