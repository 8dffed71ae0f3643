package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type PlaceOrderInput struct {
	Items          []LineInput
	IdempotencyKey string
}

// Service is the order placement engine. It owns no state of its own; stock
// and orders live behind the injected repositories.
type Service struct {
	Products ProductRepository
	Orders   OrderRepository
	Tx       TxManager
	Log      *zap.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

func NewService(products ProductRepository, orders OrderRepository, tx TxManager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Products: products, Orders: orders, Tx: tx, Log: log, Now: time.Now}
}

// PlaceOrder turns the requested lines into a durable order, or fails with no
// stock effect at all. The returned bool reports an idempotent replay: the
// order was committed by an earlier submission carrying the same key.
//
// Flow: validate -> fast-path token lookup -> one transaction doing a
// conditional decrement per line plus the order insert. The fast path is only
// an optimization; two concurrent submissions with the same key both pass it,
// and the loser's insert hits the unique constraint (ErrDuplicateToken) and is
// resolved by fetching the winner's order.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, bool, error) {
	if err := validatePlaceOrder(in); err != nil {
		return nil, false, err
	}

	if in.IdempotencyKey != "" {
		o, err := s.Orders.GetByToken(ctx, in.IdempotencyKey)
		if err == nil {
			return o, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	var created *Order
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		lines := make([]PricedLine, 0, len(in.Items))
		for _, it := range in.Items {
			price, err := s.Products.DecrementStock(ctx, it.ProductID, it.Qty)
			if err != nil {
				return err
			}
			lines = append(lines, PricedLine{ProductID: it.ProductID, Qty: it.Qty, UnitPrice: price})
		}
		o := Assemble(in.IdempotencyKey, lines, s.Now())
		if err := s.Orders.Create(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" {
			// Lost a race: a concurrent submission with the same key may have
			// committed while this attempt aborted, either by winning the
			// insert (ErrDuplicateToken) or by consuming the stock this
			// attempt needed before it ever reached the insert. Both still
			// satisfy the token contract, so check for the winner's order
			// before surfacing this attempt's failure.
			o, ferr := s.Orders.GetByToken(ctx, in.IdempotencyKey)
			if ferr == nil {
				s.Log.Debug("idempotency key resolved to committed order",
					zap.String("key", in.IdempotencyKey), zap.String("order_id", o.ID))
				return o, true, nil
			}
			if errors.Is(err, ErrDuplicateToken) {
				return nil, false, fmt.Errorf("resolve duplicate key %q: %w", in.IdempotencyKey, ferr)
			}
		}
		return nil, false, err
	}

	s.Log.Info("order placed",
		zap.String("order_id", created.ID),
		zap.Int("items", len(created.Items)),
		zap.String("total", created.TotalAmount.String()))
	return created, false, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	return s.Orders.List(ctx)
}

func validatePlaceOrder(in PlaceOrderInput) error {
	if len(in.Items) == 0 {
		return &ValidationError{Msg: "order must contain at least one item"}
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return &ValidationError{Msg: "item is missing product_id"}
		}
		if it.Qty <= 0 {
			return &ValidationError{Msg: fmt.Sprintf("invalid qty for product %s", it.ProductID)}
		}
	}
	return nil
}
