package lock

import (
	"context"
	"time"
)

const NODE_LOCK_PREFIX = "flow-node-"
const EVENT_LOCK_PREFIX = "flow-event-"
const TRACE_LOCK_PREFIX = "flow-trace-"
const RETRY_LOCK_PREFIX = "flow-retry-"

// Key builds the lease key for an id inside a stream, e.g. flow-node-order-1-approve.
func Key(prefix string, streamID string, id string) string {
	return prefix + streamID + "-" + id
}

// Provider stores lease records. A record is owned by exactly one owner token until it is
// released or swept.
type Provider interface {
	// TryAcquire creates the record for key if none exists and reports whether owner now holds it.
	TryAcquire(ctx context.Context, key string, owner string, now time.Time) (bool, error)
	// Refresh moves the refresh time of a record that owner still holds.
	Refresh(ctx context.Context, key string, owner string, now time.Time) (bool, error)
	// Release deletes the record only when owner holds it.
	Release(ctx context.Context, key string, owner string) error
	// Sweep deletes records last refreshed before olderThan and returns how many went away.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

type record struct {
	Owner       string `json:"owner"`
	RefreshedAt int64  `json:"refreshedAt"`
}
