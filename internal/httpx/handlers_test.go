package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordercore/go-product-orders/internal/orders"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, value)
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

type fixture struct {
	router    *chi.Mux
	store     *orders.MemoryStore
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := orders.NewMemoryStore()
	svc := orders.NewService(store, orders.NewMemoryOrders(store), orders.NewMemoryTx(store), zap.NewNop())
	pub := &capturePublisher{}

	router := NewRouter(zap.NewNop())
	(&OrdersHandler{Service: svc, Producer: pub, Name: "test-api", Log: zap.NewNop()}).Register(router)
	(&ProductsHandler{Products: store, Log: zap.NewNop()}).Register(router)

	return &fixture{router: router, store: store, publisher: pub}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T, name, price string, stock int) string {
	t.Helper()
	p := orders.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, f.store.Create(context.Background(), &p))
	return p.ID
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)

	t.Run("creates product", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/products", map[string]any{
			"name": "keyboard", "price": 49.99, "stock": 10,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		p := decodeJSON[orders.Product](t, rec)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "keyboard", p.Name)
		assert.Equal(t, 10, p.Stock)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/products", map[string]any{"price": 1, "stock": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects non-positive price", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/products", map[string]any{"name": "x", "price": 0, "stock": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects negative stock", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/products", map[string]any{"name": "x", "price": 1, "stock": -1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "keyboard", "49.99", 10)
	f.seed(t, "mouse", "9.99", 3)

	rec := f.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ps := decodeJSON[[]orders.Product](t, rec)
	assert.Len(t, ps, 2)
}

func TestInventory(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "keyboard", "49.99", 10)

	t.Run("returns stock", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/products/"+id+"/inventory", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		inv := decodeJSON[InventoryResp](t, rec)
		assert.Equal(t, id, inv.ID)
		assert.Equal(t, 10, inv.Stock)
	})

	t.Run("unknown product is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/products/11111111-2222-3333-4444-555555555555/inventory", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/products/not-a-uuid/inventory", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "keyboard", "49.99", 2)

	rec := f.do(t, http.MethodPost, "/products/"+id+"/restock", map[string]any{"qty": 8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodeJSON[orders.Product](t, rec)
	assert.Equal(t, 10, p.Stock)

	rec = f.do(t, http.MethodPost, "/products/"+id+"/restock", map[string]any{"qty": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/products/11111111-2222-3333-4444-555555555555/restock", map[string]any{"qty": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("creates order and publishes event", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, "keyboard", "10.00", 5)

		rec := f.do(t, http.MethodPost, "/orders", map[string]any{
			"items": []map[string]any{{"product_id": id, "qty": 2}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeJSON[PlaceOrderResp](t, rec)
		assert.False(t, resp.Replayed)
		assert.True(t, resp.Order.TotalAmount.Equal(decimal.RequireFromString("20.00")))
		assert.Equal(t, orders.StatusCreated, resp.Order.Status)
		assert.Equal(t, 1, f.publisher.count())

		var env orders.Envelope
		require.NoError(t, json.Unmarshal(f.publisher.msgs[0], &env))
		assert.Equal(t, orders.EventOrderCreated, env.EventType)
		assert.Equal(t, resp.Order.ID, env.CorrelationID)
	})

	t.Run("replay returns same order and publishes nothing new", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, "keyboard", "10.00", 5)

		body := map[string]any{
			"items":           []map[string]any{{"product_id": id, "qty": 2}},
			"idempotency_key": "abc",
		}
		first := decodeJSON[PlaceOrderResp](t, f.do(t, http.MethodPost, "/orders", body))

		rec := f.do(t, http.MethodPost, "/orders", body)
		require.Equal(t, http.StatusOK, rec.Code)
		second := decodeJSON[PlaceOrderResp](t, rec)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Order.ID, second.Order.ID)
		assert.Equal(t, 1, f.publisher.count())

		inv := decodeJSON[InventoryResp](t, f.do(t, http.MethodGet, "/products/"+id+"/inventory", nil))
		assert.Equal(t, 3, inv.Stock, "stock deducted exactly once")
	})

	t.Run("insufficient stock is 409 naming the product", func(t *testing.T) {
		f := newFixture(t)
		ok := f.seed(t, "keyboard", "10.00", 5)
		empty := f.seed(t, "sold out", "5.00", 0)

		rec := f.do(t, http.MethodPost, "/orders", map[string]any{
			"items": []map[string]any{
				{"product_id": ok, "qty": 1},
				{"product_id": empty, "qty": 1},
			},
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), empty)

		inv := decodeJSON[InventoryResp](t, f.do(t, http.MethodGet, "/products/"+ok+"/inventory", nil))
		assert.Equal(t, 5, inv.Stock, "aborted order must not touch other items")
		assert.Equal(t, 0, f.publisher.count())
	})

	t.Run("unknown product is 404", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/orders", map[string]any{
			"items": []map[string]any{{"product_id": "11111111-2222-3333-4444-555555555555", "qty": 1}},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed input is 400", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, "keyboard", "10.00", 5)

		for name, body := range map[string]any{
			"empty items":  map[string]any{"items": []map[string]any{}},
			"zero qty":     map[string]any{"items": []map[string]any{{"product_id": id, "qty": 0}}},
			"bad uuid":     map[string]any{"items": []map[string]any{{"product_id": "nope", "qty": 1}}},
			"missing body": nil,
		} {
			rec := f.do(t, http.MethodPost, "/orders", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		}
	})
}

func TestOrderHistory(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "keyboard", "10.00", 10)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/orders", map[string]any{
			"items": []map[string]any{{"product_id": id, "qty": 1}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[[]orders.Order](t, rec)
	require.Len(t, got, 2)
	assert.False(t, got[0].CreatedAt.Before(got[1].CreatedAt), "most recent first")
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, "keyboard", got[0].Items[0].ProductName)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
