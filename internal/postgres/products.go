package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ordercore/go-product-orders/internal/orders"
)

type ProductRepo struct{ DB *pgxpool.Pool }

var _ orders.ProductRepository = (*ProductRepo)(nil)

func (r *ProductRepo) Create(ctx context.Context, p *orders.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return conn(ctx, r.DB).QueryRow(ctx, `
		INSERT INTO products(id, name, price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Price, p.Stock,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*orders.Product, error) {
	var p orders.Product
	err := conn(ctx, r.DB).QueryRow(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context) ([]orders.Product, error) {
	rows, err := conn(ctx, r.DB).Query(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementStock is the conditional decrement: check and reduce happen in one
// UPDATE, so two concurrent callers can never both pass the stock check. Zero
// rows means either a missing product or not enough stock; a probe inside the
// same transaction tells the two apart.
func (r *ProductRepo) DecrementStock(ctx context.Context, id string, qty int) (decimal.Decimal, error) {
	db := conn(ctx, r.DB)

	var price decimal.Decimal
	err := db.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING price`, id, qty,
	).Scan(&price)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, &orders.ProductNotFoundError{ProductID: id}
	}
	return decimal.Zero, &orders.InsufficientStockError{ProductID: id}
}

func (r *ProductRepo) AddStock(ctx context.Context, id string, qty int) error {
	ct, err := conn(ctx, r.DB).Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &orders.ProductNotFoundError{ProductID: id}
	}
	return nil
}
