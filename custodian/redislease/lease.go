// Package redislease implements custodian.Lease with a Redis SET NX lock.
package redislease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-token-custodian/custodian"
	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

var _ custodian.Lease = (*Lease)(nil)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a best-effort distributed lock. It expires after ttl so a crashed
// holder cannot block refreshes forever.
type Lease struct {
	client redis.UniversalClient
	prefix string
}

// New returns a lease backed by client.
func New(client redis.UniversalClient) *Lease {
	return &Lease{client: client, prefix: "custodian:lease:"}
}

// WithPrefix changes the key prefix.
func (l *Lease) WithPrefix(prefix string) *Lease {
	l.prefix = prefix
	return l
}

// Acquire sets the lease key if absent. It does not wait for a current holder.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrLeaseNotAcquired, "lease %s", key)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lease %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
