package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordercore/go-product-orders/internal/orders"
	"github.com/ordercore/go-product-orders/internal/redisx"
)

type ProductsHandler struct {
	Products orders.ProductRepository
	Redis    *redis.Client // optional stock cache
	Log      *zap.Logger
}

type CreateProductReq struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock" validate:"gte=0"`
}

type RestockReq struct {
	Qty int `json:"qty" validate:"required,gt=0"`
}

type InventoryResp struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Post("/products", h.create)
	r.Get("/products", h.list)
	r.Get("/products/{id}/inventory", h.inventory)
	r.Post("/products/{id}/restock", h.restock)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if !req.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p := orders.Product{Name: req.Name, Price: req.Price, Stock: req.Stock}
	if err := h.Products.Create(ctx, &p); err != nil {
		h.Log.Error("product create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) inventory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyProductStock, id)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		var nf *orders.ProductNotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, nf.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
		return
	}

	resp := InventoryResp{ID: p.ID, Name: p.Name, Stock: p.Stock}
	if h.Redis != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLStockCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	var req RestockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Products.AddStock(ctx, id, req.Qty); err != nil {
		var nf *orders.ProductNotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, nf.Error())
			return
		}
		h.Log.Error("restock failed", zap.String("product_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
		return
	}

	// drop the cached stock entry so the next inventory read is fresh
	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyProductStock, id)).Err()
	}

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "temporary failure, retry")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
