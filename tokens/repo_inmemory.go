package tokens

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type recordKey struct {
	providerID string
	userID     string
}

// InMemoryRepo is a thread-safe process-local implementation of Repo, used for
// single-user and offline deployments.
type InMemoryRepo struct {
	mu      sync.RWMutex
	records map[recordKey]*Record
}

// NewInMemoryRepo creates an empty in-memory token repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		records: make(map[recordKey]*Record),
	}
}

func (r *InMemoryRepo) Get(_ context.Context, providerID, userID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[recordKey{providerID, userID}]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "token %s/%s", providerID, userID)
	}
	// Return a copy to prevent external modifications
	return rec.Clone(), nil
}

func (r *InMemoryRepo) Save(_ context.Context, providerID, userID string, record Record) (*Record, error) {
	record.ProviderID = providerID
	record.UserID = userID
	record.UpdatedAt = NowTimeFunc()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[recordKey{providerID, userID}] = &record
	return record.Clone(), nil
}

func (r *InMemoryRepo) List(_ context.Context, providerID string) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0)
	for k, rec := range r.records {
		if k.providerID == providerID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *InMemoryRepo) ListUserIDs(_ context.Context, providerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0)
	for k := range r.records {
		if k.providerID == providerID {
			out = append(out, k.userID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, providerID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, recordKey{providerID, userID})
	return nil
}

// Len returns the number of stored records across all providers.
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
