package redisx

import "time"

const (
	// sweep lock shared by all replicas: lock:order-sweep -> holder token
	KeySweepLock = "lock:order-sweep"

	// idem:order:create:{user_id}:{key} -> order id, or the pending marker
	KeyIdemOrderCreate = "idem:order:create:%d:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	// TTLIdempotencyPending bounds how long a crashed request blocks retries.
	TTLIdempotencyPending = 2 * time.Minute
)
