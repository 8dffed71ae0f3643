package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordercore/go-product-orders/internal/orders"
)

type OrderRepo struct{ DB *pgxpool.Pool }

var _ orders.OrderRepository = (*OrderRepo)(nil)

const uniqueViolation = "23505"

// Create inserts the order and its items. A unique violation on the
// idempotency key column becomes ErrDuplicateToken; the surrounding
// transaction is already doomed at that point and the caller must resolve by
// re-fetching after rollback.
func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	db := conn(ctx, r.DB)

	var key *string
	if o.IdempotencyKey != "" {
		key = &o.IdempotencyKey
	}
	_, err := db.Exec(ctx, `
		INSERT INTO orders(id, idempotency_key, status, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, key, string(o.Status), o.TotalAmount, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "orders_idempotency_key_key" {
			return orders.ErrDuplicateToken
		}
		return err
	}

	for _, it := range o.Items {
		if _, err := db.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price)
			VALUES ($1, $2, $3, $4)`,
			o.ID, it.ProductID, it.Qty, it.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepo) GetByToken(ctx context.Context, token string) (*orders.Order, error) {
	out, err := r.query(ctx, `WHERE o.idempotency_key = $1`, token)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, orders.ErrNotFound
	}
	return &out[0], nil
}

func (r *OrderRepo) List(ctx context.Context) ([]orders.Order, error) {
	return r.query(ctx, ``)
}

// query fetches orders with items and product names nested, most recent
// first. Rows arrive grouped by order (secondary sort on item id keeps the
// insertion order of lines).
func (r *OrderRepo) query(ctx context.Context, where string, args ...any) ([]orders.Order, error) {
	rows, err := conn(ctx, r.DB).Query(ctx, `
		SELECT o.id, o.idempotency_key, o.status, o.total_amount, o.created_at,
		       i.product_id, p.name, i.qty, i.unit_price
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		JOIN products p ON p.id = i.product_id
		`+where+`
		ORDER BY o.created_at DESC, o.id, i.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var (
			o   orders.Order
			key *string
			it  orders.OrderItem
		)
		if err := rows.Scan(&o.ID, &key, &o.Status, &o.TotalAmount, &o.CreatedAt,
			&it.ProductID, &it.ProductName, &it.Qty, &it.UnitPrice); err != nil {
			return nil, err
		}
		if key != nil {
			o.IdempotencyKey = *key
		}
		if n := len(out); n > 0 && out[n-1].ID == o.ID {
			out[n-1].Items = append(out[n-1].Items, it)
			continue
		}
		o.Items = []orders.OrderItem{it}
		out = append(out, o)
	}
	return out, rows.Err()
}
