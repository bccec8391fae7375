package redisx

import (
	"fmt"
	"time"
)

const (
	// Purchase guard: guard:checkout:{email}:{product_id} -> intent id
	KeyCheckoutGuard = "guard:checkout:%s"

	// Last checkout snapshot per session: checkout:snapshot:{session_id} -> JSON
	KeyCheckoutSnapshot = "checkout:snapshot:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	// A guard outlives the slowest gateway interaction but not an abandoned tab.
	TTLGuard    = 15 * time.Minute
	TTLSnapshot = 24 * time.Hour
	TTLDedup    = 48 * time.Hour

	redisOpTimeout = 2 * time.Second
)

func Key(format string, args ...any) string { return fmt.Sprintf(format, args...) }
