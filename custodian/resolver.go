// Package custodian hands out valid provider access tokens, refreshing them when they are about to expire.
package custodian

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/providers"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

const (
	// DefaultBuffer is how long before ExpiresAt a token is treated as expired.
	DefaultBuffer = 5 * time.Minute
	// DefaultFlightTimeout bounds one refresh (lease, exchange and save).
	DefaultFlightTimeout = providers.DefaultTimeout + 5*time.Second
)

// Refresher runs the refresh_token grant against a provider.
type Refresher interface {
	ExchangeRefreshToken(ctx context.Context, providerID, refreshToken string) (*providers.TokenSet, error)
}

// Options configures a Resolver. Zero values select the defaults.
type Options struct {
	Buffer        time.Duration
	FlightTimeout time.Duration
	Lease         Lease
	Logger        *zerolog.Logger
	Now           func() time.Time
}

// Status describes a user's connection to one provider.
type Status struct {
	Connected            bool      `json:"connected"`
	NeedsReauthorization bool      `json:"needsReauthorization"`
	ExpiresAt            time.Time `json:"expiresAt,omitzero"`
}

// Resolver returns valid access tokens and owns the only refresh path.
// Concurrent refreshes of the same (provider, user) collapse into one provider call.
type Resolver struct {
	store     tokens.Repo
	refresher Refresher
	lease     Lease
	group     singleflight.Group

	buffer        time.Duration
	flightTimeout time.Duration
	now           func() time.Time
	log           zerolog.Logger
	tracer        trace.Tracer
}

// NewResolver wires a resolver over store and refresher.
func NewResolver(store tokens.Repo, refresher Refresher, opts Options) *Resolver {
	r := &Resolver{
		store:         store,
		refresher:     refresher,
		lease:         opts.Lease,
		buffer:        opts.Buffer,
		flightTimeout: opts.FlightTimeout,
		now:           opts.Now,
		log:           zerolog.Nop(),
		tracer:        otel.Tracer("github.com/jrsteele09/go-token-custodian/custodian"),
	}
	if r.lease == nil {
		r.lease = NoopLease{}
	}
	if r.buffer <= 0 {
		r.buffer = DefaultBuffer
	}
	if r.flightTimeout <= 0 {
		r.flightTimeout = DefaultFlightTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.Logger != nil {
		r.log = opts.Logger.With().Str("component", "resolver").Logger()
	}
	return r
}

// Buffer returns the configured refresh buffer.
func (r *Resolver) Buffer() time.Duration {
	return r.buffer
}

// GetValidAccessToken returns an access token that is valid for at least the buffer.
// It fails with ErrNotConnected when no record exists and ErrRefreshFailed when a
// needed refresh did not succeed, in which case the user must re-authorize.
func (r *Resolver) GetValidAccessToken(ctx context.Context, providerID, userID string) (string, error) {
	rec, err := r.GetValidRecord(ctx, providerID, userID)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// GetValidRecord is GetValidAccessToken returning the whole record.
func (r *Resolver) GetValidRecord(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	return r.resolve(ctx, providerID, userID)
}

// Refresh forces a refresh through the same single-flight path used by GetValidAccessToken.
func (r *Resolver) Refresh(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	return r.refresh(ctx, providerID, userID, true)
}

// Disconnect removes the stored record. Disconnecting an unknown key is not an error.
func (r *Resolver) Disconnect(ctx context.Context, providerID, userID string) error {
	if err := r.store.Delete(ctx, providerID, userID); err != nil {
		return errors.Wrapf(err, "disconnect %s/%s", providerID, userID)
	}
	r.log.Info().Str("provider", providerID).Str("user_id", userID).Msg("token disconnected")
	return nil
}

// Status reports whether a valid token can be obtained. A stored record whose refresh
// fails is reported as needing re-authorization.
func (r *Resolver) Status(ctx context.Context, providerID, userID string) (*Status, error) {
	rec, err := r.resolve(ctx, providerID, userID)
	switch {
	case err == nil:
		return &Status{Connected: true, ExpiresAt: rec.ExpiresAt}, nil
	case errors.Is(err, errors.ErrNotConnected):
		return &Status{}, nil
	case errors.Is(err, errors.ErrRefreshFailed):
		return &Status{NeedsReauthorization: true}, nil
	default:
		return nil, err
	}
}

func (r *Resolver) resolve(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	ctx, span := r.tracer.Start(ctx, "custodian.Resolve", trace.WithAttributes(
		attribute.String("provider.id", providerID),
	))
	defer span.End()

	rec, err := r.load(ctx, providerID, userID)
	if err != nil {
		return nil, err
	}
	if !rec.ExpiresWithin(r.now(), r.buffer) {
		span.SetAttributes(attribute.Bool("token.refreshed", false))
		return rec, nil
	}
	span.SetAttributes(attribute.Bool("token.refreshed", true))
	rec, err = r.refresh(ctx, providerID, userID, false)
	if err != nil {
		span.SetStatus(codes.Error, "refresh failed")
		return nil, err
	}
	return rec, nil
}

func (r *Resolver) load(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	rec, err := r.store.Get(ctx, providerID, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrNotConnected, "%s/%s", providerID, userID)
		}
		return nil, errors.Wrapf(err, "load token %s/%s", providerID, userID)
	}
	return rec, nil
}

func flightKey(providerID, userID string) string {
	return providerID + "\x00" + userID
}

// refresh joins or starts the flight for the key. The flight runs detached from the
// caller's cancellation so a caller giving up does not abort a refresh that other
// callers are waiting on.
func (r *Resolver) refresh(ctx context.Context, providerID, userID string, force bool) (*tokens.Record, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey(providerID, userID), func() (any, error) {
		fctx, cancel := context.WithTimeout(flightCtx, r.flightTimeout)
		defer cancel()
		return r.doRefresh(fctx, providerID, userID, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tokens.Record).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) doRefresh(ctx context.Context, providerID, userID string, force bool) (*tokens.Record, error) {
	ctx, span := r.tracer.Start(ctx, "custodian.Refresh", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.Bool("refresh.forced", force),
	))
	defer span.End()

	logger := r.log.With().Str("provider", providerID).Str("user_id", userID).Logger()

	release, err := r.lease.Acquire(ctx, "refresh:"+providerID+":"+userID, r.flightTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "lease")
		logger.Warn().Err(err).Msg("refresh lease not acquired")
		return nil, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("release refresh lease")
		}
	}()

	// Re-read under the flight: another flight or process may have refreshed already.
	rec, err := r.load(ctx, providerID, userID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if !force && !rec.ExpiresWithin(now, r.buffer) {
		return rec, nil
	}

	ts, err := r.refresher.ExchangeRefreshToken(ctx, providerID, rec.RefreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange")
		logger.Warn().Err(err).Msg("token refresh failed, record left unchanged")
		return nil, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}

	next := rec.Clone()
	next.AccessToken = ts.AccessToken
	if ts.RefreshToken != "" {
		next.RefreshToken = ts.RefreshToken
	}
	next.ExpiresAt = now.Add(ts.ExpiresIn)

	saved, err := r.store.Save(ctx, providerID, userID, *next)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save")
		logger.Error().Err(err).Msg("refreshed token could not be saved")
		return nil, fmt.Errorf("%w: save: %w", errors.ErrRefreshFailed, err)
	}
	logger.Debug().Time("expires_at", saved.ExpiresAt).Bool("forced", force).Msg("token refreshed")
	return saved, nil
}
