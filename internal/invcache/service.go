// Package invcache keeps the Redis inventory read cache honest: every
// committed order invalidates the cached stock of the products it touched.
package invcache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ordercore/go-product-orders/internal/orders"
	"github.com/ordercore/go-product-orders/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderCreated is wired as the consumer handler for order.created.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	// dedup on event id; replays are harmless but noisy
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	var p orders.OrderCreatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}

	keys := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		keys = append(keys, fmt.Sprintf(redisx.KeyProductStock, it.ProductID))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	s.Log.Debug("stock cache invalidated",
		zap.String("order_id", p.OrderID), zap.Int("products", len(keys)))
	return nil
}
