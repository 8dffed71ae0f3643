package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ordercore/go-product-orders/internal/kafka"
	"github.com/ordercore/go-product-orders/internal/orders"
	"github.com/ordercore/go-product-orders/internal/redisx"
)

var validate = validator.New()

// Publisher is what the handlers need from the Kafka producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Service  *orders.Service
	Producer Publisher     // optional
	Redis    *redis.Client // optional; Postgres is always the source of truth
	Name     string        // producer name stamped on events
	Log      *zap.Logger
}

type PlaceOrderItemReq struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type PlaceOrderReq struct {
	Items          []PlaceOrderItemReq `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string              `json:"idempotency_key" validate:"omitempty,max=128"`
}

type PlaceOrderResp struct {
	Order    *orders.Order `json:"order"`
	Replayed bool          `json:"replayed"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Redis fast path: a replayed key returns the cached order without
	// touching Postgres. Misses fall through; the service re-checks in the DB.
	if req.IdempotencyKey != "" && h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemOrder, req.IdempotencyKey)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var o orders.Order
			if json.Unmarshal([]byte(s), &o) == nil {
				writeJSON(w, http.StatusOK, PlaceOrderResp{Order: &o, Replayed: true})
				return
			}
		}
	}

	items := make([]orders.LineInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineInput{ProductID: it.ProductID, Qty: it.Qty})
	}

	order, replayed, err := h.Service.PlaceOrder(ctx, orders.PlaceOrderInput{
		Items:          items,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writePlacementError(w, err)
		return
	}

	if req.IdempotencyKey != "" && h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemOrder, req.IdempotencyKey)
		_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(order), redisx.TTLIdempotency).Err()
	}

	if !replayed {
		h.publishCreated(r, order)
		writeJSON(w, http.StatusCreated, PlaceOrderResp{Order: order, Replayed: false})
		return
	}
	writeJSON(w, http.StatusOK, PlaceOrderResp{Order: order, Replayed: true})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Service.ListOrders(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) writePlacementError(w http.ResponseWriter, err error) {
	var (
		vErr  *orders.ValidationError
		nfErr *orders.ProductNotFoundError
		isErr *orders.InsufficientStockError
	)
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &nfErr):
		writeError(w, http.StatusNotFound, nfErr.Error())
	case errors.As(err, &isErr):
		writeError(w, http.StatusConflict, isErr.Error())
	default:
		h.Log.Error("order placement failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
	}
}

func (h *OrdersHandler) publishCreated(r *http.Request, o *orders.Order) {
	if h.Producer == nil {
		return
	}
	items := make([]orders.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Name,
		TraceID:       middleware.GetReqID(r.Context()),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:        o.ID,
			IdempotencyKey: o.IdempotencyKey,
			Items:          items,
			TotalAmount:    o.TotalAmount,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("invalid field %s (%s)", f.Field(), f.Tag())
	}
	return "invalid request"
}
