package tokens

import (
	"context"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Repo persists one Record per (provider, user) pair.
// Get returns errors.ErrNotFound when no record exists. Save is an upsert that
// stamps UpdatedAt with the current time and returns the stored record.
// Deleting a missing key is not an error.
// ListUserIDs returns the stored user IDs of a provider in order without decoding
// the records, so one unreadable record does not hide the others.
type Repo interface {
	Get(ctx context.Context, providerID, userID string) (*Record, error)
	Save(ctx context.Context, providerID, userID string, record Record) (*Record, error)
	List(ctx context.Context, providerID string) ([]*Record, error)
	ListUserIDs(ctx context.Context, providerID string) ([]string, error)
	Delete(ctx context.Context, providerID, userID string) error
}
