package custodian

import (
	"context"
	"time"
)

// Lease serializes refreshes of one key across processes that share a durable store.
// Acquire returns errors.ErrLeaseNotAcquired when another holder owns the key.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// NoopLease is used when the process is the only writer. The in-process
// single-flight already serializes refreshes per key.
type NoopLease struct{}

func (NoopLease) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
