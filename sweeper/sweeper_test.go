package sweeper_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-token-custodian/custodian"
	"github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/providers"
	"github.com/jrsteele09/go-token-custodian/sweeper"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

// selectiveProvider rejects refresh tokens listed in revoked.
type selectiveProvider struct {
	revoked map[string]bool
	calls   atomic.Int32
}

func (p *selectiveProvider) ExchangeRefreshToken(_ context.Context, providerID, refreshToken string) (*providers.TokenSet, error) {
	p.calls.Add(1)
	if p.revoked[refreshToken] {
		return nil, &providers.ExchangeError{ProviderID: providerID, Operation: providers.OpRefreshToken, StatusCode: 400, Code: "invalid_grant"}
	}
	return &providers.TokenSet{AccessToken: "new-" + refreshToken, RefreshToken: "next-" + refreshToken, ExpiresIn: time.Hour}, nil
}

func seedUsers(t *testing.T, store tokens.Repo, providerID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := store.Save(context.Background(), providerID, u, tokens.Record{
			AccessToken:  "old-" + u,
			RefreshToken: "rt-" + u,
			ExpiresAt:    time.Now().Add(48 * time.Hour),
		})
		require.NoError(t, err)
	}
}

func TestSweepOnce_FailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := tokens.NewInMemoryRepo()
	seedUsers(t, store, "kroger", "user-1", "user-2", "user-3")
	before2, err := store.Get(ctx, "kroger", "user-2")
	require.NoError(t, err)

	p := &selectiveProvider{revoked: map[string]bool{"rt-user-2": true}}
	resolver := custodian.NewResolver(store, p, custodian.Options{})
	sw := sweeper.New(store, resolver, []string{"kroger"}, sweeper.Options{})

	report := sw.SweepOnce(ctx)
	require.Equal(t, 3, report.Attempted)
	require.Equal(t, 2, report.Refreshed)
	require.Equal(t, 1, report.Failed)
	require.Empty(t, report.ListErrors)

	for _, u := range []string{"user-1", "user-3"} {
		rec, err := store.Get(ctx, "kroger", u)
		require.NoError(t, err)
		require.Equal(t, "new-rt-"+u, rec.AccessToken)
		require.Equal(t, "next-rt-"+u, rec.RefreshToken)
	}
	after2, err := store.Get(ctx, "kroger", "user-2")
	require.NoError(t, err)
	require.Equal(t, before2, after2)
	require.Equal(t, 3, store.Len())
}

type flakyLister struct {
	tokens.Repo
	broken string
}

func (l flakyLister) ListUserIDs(ctx context.Context, providerID string) ([]string, error) {
	if providerID == l.broken {
		return nil, errors.New("connection reset")
	}
	return l.Repo.ListUserIDs(ctx, providerID)
}

func TestSweepOnce_ProvidersAreIndependent(t *testing.T) {
	store := tokens.NewInMemoryRepo()
	seedUsers(t, store, "kroger", "a", "b")
	seedUsers(t, store, "google", "c")
	seedUsers(t, store, "microsoft", "d")

	p := &selectiveProvider{}
	resolver := custodian.NewResolver(store, p, custodian.Options{})
	sw := sweeper.New(flakyLister{Repo: store, broken: "microsoft"}, resolver,
		[]string{"kroger", "google", "microsoft"}, sweeper.Options{})

	report := sw.SweepOnce(context.Background())
	require.Equal(t, 3, report.Attempted)
	require.Equal(t, 3, report.Refreshed)
	require.Len(t, report.ListErrors, 1)
	require.Contains(t, report.ListErrors, "microsoft")
	require.EqualValues(t, 3, p.calls.Load())
}

func TestSweepOnce_Pacing(t *testing.T) {
	store := tokens.NewInMemoryRepo()
	seedUsers(t, store, "kroger", "a", "b", "c")
	resolver := custodian.NewResolver(store, &selectiveProvider{}, custodian.Options{})
	sw := sweeper.New(store, resolver, []string{"kroger"}, sweeper.Options{Pacing: 40 * time.Millisecond})

	start := time.Now()
	report := sw.SweepOnce(context.Background())
	require.Equal(t, 3, report.Refreshed)
	require.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestRun(t *testing.T) {
	store := tokens.NewInMemoryRepo()
	seedUsers(t, store, "kroger", "a")
	p := &selectiveProvider{}
	resolver := custodian.NewResolver(store, p, custodian.Options{})
	sw := sweeper.New(store, resolver, []string{"kroger"}, sweeper.Options{
		Interval:     20 * time.Millisecond,
		SweepOnStart: true,
	})
	require.Nil(t, sw.LastReport())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	last := sw.LastReport()
	require.NotNil(t, last)
	require.LessOrEqual(t, last.Attempted, 1)
}
