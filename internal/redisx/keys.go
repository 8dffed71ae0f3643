package redisx

import "time"

const (
	// Idempotency fast path: idem:order:{key} -> full order JSON.
	// Postgres stays the source of truth; this only short-circuits replays.
	KeyIdemOrder = "idem:order:%s"

	// Inventory read cache: stock:product:{product_id} -> {"id","name","stock"}
	KeyProductStock = "stock:product:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStockCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
