package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore holds products and orders in maps behind one RWMutex. It backs
// unit tests and gives the repositories a reference semantics to test the
// engine against without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
	orders   []Order
	byToken  map[string]string // idempotency key -> order id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]Product),
		byToken:  make(map[string]string),
	}
}

// txKey marks a context as running inside MemoryTx, whose global write lock
// replaces the per-call locks.
type txKey struct{}

func isTx(ctx context.Context) bool {
	b, ok := ctx.Value(txKey{}).(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

var _ ProductRepository = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, p *Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.products[id]
	if !ok {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id string, qty int) (decimal.Decimal, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.products[id]
	if !ok {
		return decimal.Zero, &ProductNotFoundError{ProductID: id}
	}
	if p.Stock < qty {
		return decimal.Zero, &InsufficientStockError{ProductID: id}
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return p.Price, nil
}

func (m *MemoryStore) AddStock(ctx context.Context, id string, qty int) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.products[id]
	if !ok {
		return &ProductNotFoundError{ProductID: id}
	}
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return nil
}

// MemoryOrders implements OrderRepository on top of the shared store.
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if o.IdempotencyKey != "" {
		if _, taken := mo.store.byToken[o.IdempotencyKey]; taken {
			return ErrDuplicateToken
		}
		mo.store.byToken[o.IdempotencyKey] = o.ID
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	mo.store.orders = append(mo.store.orders, cp)
	return nil
}

func (mo *MemoryOrders) GetByToken(ctx context.Context, token string) (*Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	id, ok := mo.store.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	for i := range mo.store.orders {
		if mo.store.orders[i].ID == id {
			cp := mo.store.withNames(mo.store.orders[i])
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mo *MemoryOrders) List(ctx context.Context) ([]Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]Order, 0, len(mo.store.orders))
	for i := len(mo.store.orders) - 1; i >= 0; i-- {
		out = append(out, mo.store.withNames(mo.store.orders[i]))
	}
	// insertion order already breaks ties; sort is stable on created_at
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// withNames returns a deep copy with product names resolved, mirroring the
// SQL join done by the Postgres repository.
func (m *MemoryStore) withNames(o Order) Order {
	cp := o
	cp.Items = append([]OrderItem(nil), o.Items...)
	for i := range cp.Items {
		if p, ok := m.products[cp.Items[i].ProductID]; ok {
			cp.Items[i].ProductName = p.Name
		}
	}
	return cp
}

// MemoryTx emulates the transaction boundary with the store write lock plus a
// snapshot taken at begin: if fn fails, the snapshot is restored, so partial
// decrements never survive an aborted placement.
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

var _ TxManager = (*MemoryTx)(nil)

func (tx *MemoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	products := make(map[string]Product, len(tx.store.products))
	for k, v := range tx.store.products {
		products[k] = v
	}
	ordersSnap := append([]Order(nil), tx.store.orders...)
	byToken := make(map[string]string, len(tx.store.byToken))
	for k, v := range tx.store.byToken {
		byToken[k] = v
	}

	ctx = context.WithValue(ctx, txKey{}, true)
	if err := fn(ctx); err != nil {
		tx.store.products = products
		tx.store.orders = ordersSnap
		tx.store.byToken = byToken
		return err
	}
	return nil
}
