// Package redisrepo stores custodian token records in Redis hashes.
package redisrepo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

const defaultPrefix = "custodian"

var _ tokens.Repo = (*Repo)(nil)

// Repo keeps one hash per (provider, user) and a per-provider set of user IDs for List.
type Repo struct {
	client redis.UniversalClient
	sealer tokens.Sealer
	prefix string
}

// New constructs a Redis-backed token repo.
func New(client redis.UniversalClient, sealer tokens.Sealer) *Repo {
	if sealer == nil {
		sealer = tokens.NopSealer{}
	}
	return &Repo{client: client, sealer: sealer, prefix: defaultPrefix}
}

// WithPrefix scopes all keys under prefix. Used to isolate test runs.
func (r *Repo) WithPrefix(prefix string) *Repo {
	r.prefix = prefix
	return r
}

// Key segments are query-escaped so a ':' inside an ID cannot shift the
// provider/user boundary.
func (r *Repo) tokenKey(providerID, userID string) string {
	return fmt.Sprintf("%s:token:%s:%s", r.prefix, url.QueryEscape(providerID), url.QueryEscape(userID))
}

func (r *Repo) indexKey(providerID string) string {
	return fmt.Sprintf("%s:tokens:%s", r.prefix, url.QueryEscape(providerID))
}

func (r *Repo) decode(providerID, userID string, fields map[string]string) (*tokens.Record, error) {
	rec := tokens.Record{
		ProviderID:   providerID,
		UserID:       userID,
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
	}
	var err error
	if rec.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := tokens.OpenRecord(r.sealer, &rec); err != nil {
		return nil, fmt.Errorf("open token %s/%s: %w", providerID, userID, err)
	}
	return &rec, nil
}

func (r *Repo) Get(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	fields, err := r.client.HGetAll(ctx, r.tokenKey(providerID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "token %s/%s", providerID, userID)
	}
	return r.decode(providerID, userID, fields)
}

func (r *Repo) Save(ctx context.Context, providerID, userID string, record tokens.Record) (*tokens.Record, error) {
	record.ProviderID = providerID
	record.UserID = userID
	record.UpdatedAt = tokens.NowTimeFunc().UTC()

	sealed, err := tokens.SealRecord(r.sealer, record)
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.tokenKey(providerID, userID),
		"access_token", sealed.AccessToken,
		"refresh_token", sealed.RefreshToken,
		"expires_at", sealed.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"updated_at", sealed.UpdatedAt.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, r.indexKey(providerID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return &record, nil
}

func (r *Repo) List(ctx context.Context, providerID string) ([]*tokens.Record, error) {
	users, err := r.client.SMembers(ctx, r.indexKey(providerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list token index: %w", err)
	}
	sort.Strings(users)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(users))
	for i, userID := range users {
		cmds[i] = pipe.HGetAll(ctx, r.tokenKey(providerID, userID))
	}
	if len(users) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("load tokens: %w", err)
		}
	}

	out := make([]*tokens.Record, 0, len(users))
	for i, userID := range users {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			// index entry without a hash, left behind by an external delete
			continue
		}
		rec, err := r.decode(providerID, userID, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListUserIDs reads the provider index and drops entries whose hash no longer exists.
func (r *Repo) ListUserIDs(ctx context.Context, providerID string) ([]string, error) {
	users, err := r.client.SMembers(ctx, r.indexKey(providerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list token index: %w", err)
	}
	sort.Strings(users)
	if len(users) == 0 {
		return users, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(users))
	for i, userID := range users {
		cmds[i] = pipe.Exists(ctx, r.tokenKey(providerID, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check token keys: %w", err)
	}

	out := make([]string, 0, len(users))
	for i, userID := range users {
		if cmds[i].Val() > 0 {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, providerID, userID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.tokenKey(providerID, userID))
	pipe.SRem(ctx, r.indexKey(providerID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
