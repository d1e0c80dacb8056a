// Package sweeper periodically force-refreshes every stored token so that
// long idle refresh tokens do not lapse.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jrsteele09/go-token-custodian/tokens"
)

const (
	DefaultInterval = 7 * 24 * time.Hour
	DefaultPacing   = time.Second
)

// Refresher forces a refresh of one record. custodian.Resolver implements it.
type Refresher interface {
	Refresh(ctx context.Context, providerID, userID string) (*tokens.Record, error)
}

// Lister enumerates the users holding a record for one provider. Records are
// not decoded here: Refresh re-reads each one, so an unreadable record fails alone.
type Lister interface {
	ListUserIDs(ctx context.Context, providerID string) ([]string, error)
}

// Options configures a Sweeper.
type Options struct {
	Interval time.Duration
	// Pacing is the minimum gap between refreshes within one provider.
	Pacing       time.Duration
	SweepOnStart bool
	Logger       *zerolog.Logger
}

// Report summarizes one sweep.
type Report struct {
	Started    time.Time
	Finished   time.Time
	Attempted  int
	Refreshed  int
	Failed     int
	ListErrors map[string]error
}

// Sweeper runs proactive refreshes over all providers.
type Sweeper struct {
	lister      Lister
	refresher   Refresher
	providerIDs []string

	interval     time.Duration
	pacing       time.Duration
	sweepOnStart bool
	log          zerolog.Logger
	tracer       trace.Tracer

	mu   sync.Mutex
	last *Report
}

// New creates a sweeper over the given providers.
func New(lister Lister, refresher Refresher, providerIDs []string, opts Options) *Sweeper {
	s := &Sweeper{
		lister:       lister,
		refresher:    refresher,
		providerIDs:  providerIDs,
		interval:     opts.Interval,
		pacing:       opts.Pacing,
		sweepOnStart: opts.SweepOnStart,
		log:          zerolog.Nop(),
		tracer:       otel.Tracer("github.com/jrsteele09/go-token-custodian/sweeper"),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.pacing < 0 {
		s.pacing = 0
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "sweeper").Logger()
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Dur("pacing", s.pacing).Strs("providers", s.providerIDs).Msg("sweeper started")
	if s.sweepOnStart {
		s.SweepOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			if ctx.Err() == nil {
				s.SweepOnce(ctx)
			}
		}
	}
}

// LastReport returns the most recent completed sweep, or nil.
func (s *Sweeper) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// SweepOnce refreshes every record of every provider. Providers run concurrently and
// records within a provider run one at a time. A failed record is counted and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) Report {
	ctx, span := s.tracer.Start(ctx, "sweeper.SweepOnce")
	defer span.End()

	report := Report{Started: time.Now(), ListErrors: map[string]error{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, providerID := range s.providerIDs {
		g.Go(func() error {
			attempted, refreshed, failed, err := s.sweepProvider(gctx, providerID)
			mu.Lock()
			defer mu.Unlock()
			report.Attempted += attempted
			report.Refreshed += refreshed
			report.Failed += failed
			if err != nil {
				report.ListErrors[providerID] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	report.Finished = time.Now()

	span.SetAttributes(
		attribute.Int("sweep.attempted", report.Attempted),
		attribute.Int("sweep.refreshed", report.Refreshed),
		attribute.Int("sweep.failed", report.Failed),
	)
	s.log.Info().
		Int("attempted", report.Attempted).
		Int("refreshed", report.Refreshed).
		Int("failed", report.Failed).
		Int("list_errors", len(report.ListErrors)).
		Dur("took", report.Finished.Sub(report.Started)).
		Msg("sweep finished")

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report
}

func (s *Sweeper) sweepProvider(ctx context.Context, providerID string) (attempted, refreshed, failed int, err error) {
	logger := s.log.With().Str("provider", providerID).Logger()

	userIDs, err := s.lister.ListUserIDs(ctx, providerID)
	if err != nil {
		logger.Error().Err(err).Msg("list tokens for sweep")
		return 0, 0, 0, err
	}

	limit := rate.Inf
	if s.pacing > 0 {
		limit = rate.Every(s.pacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, userID := range userIDs {
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn().Err(err).Msg("sweep interrupted")
			return attempted, refreshed, failed, nil
		}
		attempted++
		if _, err := s.refresher.Refresh(ctx, providerID, userID); err != nil {
			failed++
			logger.Warn().Err(err).Str("user_id", userID).Msg("sweep refresh failed")
			continue
		}
		refreshed++
	}
	return attempted, refreshed, failed, nil
}
