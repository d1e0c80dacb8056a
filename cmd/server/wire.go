package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jrsteele09/go-token-custodian/authflow"
	"github.com/jrsteele09/go-token-custodian/custodian"
	"github.com/jrsteele09/go-token-custodian/custodian/redislease"
	"github.com/jrsteele09/go-token-custodian/internal/config"
	"github.com/jrsteele09/go-token-custodian/providers"
	"github.com/jrsteele09/go-token-custodian/server"
	"github.com/jrsteele09/go-token-custodian/sweeper"
	"github.com/jrsteele09/go-token-custodian/tokens"
	"github.com/jrsteele09/go-token-custodian/tokens/mongorepo"
	"github.com/jrsteele09/go-token-custodian/tokens/pgrepo"
	"github.com/jrsteele09/go-token-custodian/tokens/redisrepo"
)

type application struct {
	handler http.Handler
	sweeper *sweeper.Sweeper
	closers []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, c config.Config, logger zerolog.Logger) (*application, error) {
	app := &application{}

	registry, err := providers.NewRegistry(c.GetProviders()...)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}
	for _, p := range registry.Configs() {
		if !p.Configured() {
			logger.Warn().Str("provider", p.ID).Msg("provider has no client credentials")
		}
	}
	client := providers.NewClient(registry, providers.WithTimeout(c.GetProviderTimeout()))
	discoverCtx := providers.WithHTTPClient(ctx, &http.Client{Timeout: c.GetProviderTimeout()})
	if err := registry.Discover(discoverCtx); err != nil {
		return nil, err
	}

	sealer, err := tokens.NewSealer(c.GetTokenEncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("token sealer: %w", err)
	}

	var redisClient *redis.Client
	redisFor := func() *redis.Client {
		if redisClient == nil {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     c.GetRedisAddr(),
				Password: c.GetRedisPassword(),
				DB:       c.GetRedisDB(),
			})
			app.closers = append(app.closers, func() { _ = redisClient.Close() })
		}
		return redisClient
	}

	store, err := openStore(ctx, c, sealer, redisFor, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	var lease custodian.Lease
	switch c.GetRefreshLease() {
	case config.LeaseRedis:
		rc := redisFor()
		if err := rc.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("redis lease ping: %w", err)
		}
		lease = redislease.New(rc)
	case config.LeaseNone, "":
	default:
		app.Close()
		return nil, fmt.Errorf("unknown REFRESH_LEASE %q", c.GetRefreshLease())
	}

	resolver := custodian.NewResolver(store, client, custodian.Options{
		Buffer:        c.GetRefreshBuffer(),
		FlightTimeout: c.GetProviderTimeout() + 5*time.Second,
		Lease:         lease,
		Logger:        &logger,
	})

	stateSecret := c.GetStateSecret()
	if stateSecret == "" {
		app.Close()
		return nil, fmt.Errorf("STATE_SECRET must be set")
	}
	codec, err := authflow.NewStateCodec(stateSecret, c.GetStateMaxAge())
	if err != nil {
		app.Close()
		return nil, err
	}
	flow := authflow.NewController(client, store, codec, authflow.Options{
		CallbackBaseURL:    c.GetBaseURL(),
		AllowedReturnHosts: c.GetReturnURLAllowList(),
		DefaultProviderID:  c.GetDefaultProvider(),
		DefaultUserID:      c.GetDefaultUserID(),
		Logger:             &logger,
	})

	app.sweeper = sweeper.New(store, resolver, registry.IDs(), sweeper.Options{
		Interval:     c.GetSweepInterval(),
		Pacing:       c.GetSweepPacing(),
		SweepOnStart: c.GetSweepOnStart(),
		Logger:       &logger,
	})

	handler, err := server.New(c, server.Services{
		Resolver: resolver,
		Flow:     flow,
		Registry: registry,
		Sweeper:  app.sweeper,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.handler = handler

	if c.GetAPISharedSecret() == "" {
		logger.Warn().Msg("API_SHARED_SECRET not set, token and status endpoints will reject every request")
	}
	logger.Info().
		Str("store", c.GetTokenStore()).
		Str("lease", c.GetRefreshLease()).
		Str("redirect_uri", flow.RedirectURI()).
		Strs("providers", registry.IDs()).
		Msg("custodian ready")
	return app, nil
}

func openStore(ctx context.Context, c config.Config, sealer tokens.Sealer, redisFor func() *redis.Client, app *application) (tokens.Repo, error) {
	switch c.GetTokenStore() {
	case config.StoreMemory:
		return tokens.NewInMemoryRepo(), nil

	case config.StorePostgres:
		pool, err := pgrepo.Connect(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pool.Close)
		repo := pgrepo.New(pool, sealer)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.GetMongoURI()))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		repo := mongorepo.New(client.Database(c.GetMongoDatabase()), sealer)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.StoreRedis:
		rc := redisFor()
		if err := rc.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisrepo.New(rc, sealer), nil

	default:
		return nil, fmt.Errorf("unknown TOKEN_STORE %q", c.GetTokenStore())
	}
}
