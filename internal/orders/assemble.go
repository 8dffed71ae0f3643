package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricedLine is a line item whose conditional decrement already succeeded,
// carrying the unit price captured at decrement time.
type PricedLine struct {
	ProductID string
	Qty       int
	UnitPrice decimal.Decimal
}

// Assemble builds the order record for persistence: exact decimal total over
// qty*unitPrice, status CREATED, the supplied idempotency key (may be empty)
// and the given creation time. Line order is preserved.
func Assemble(token string, lines []PricedLine, now time.Time) *Order {
	total := decimal.Zero
	items := make([]OrderItem, 0, len(lines))
	for _, ln := range lines {
		total = total.Add(ln.UnitPrice.Mul(decimal.NewFromInt(int64(ln.Qty))))
		items = append(items, OrderItem{
			ProductID: ln.ProductID,
			Qty:       ln.Qty,
			UnitPrice: ln.UnitPrice,
		})
	}
	return &Order{
		ID:             uuid.NewString(),
		IdempotencyKey: token,
		Status:         StatusCreated,
		TotalAmount:    total,
		CreatedAt:      now.UTC(),
		Items:          items,
	}
}
