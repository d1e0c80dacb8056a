// Package pgrepo stores custodian token records in Postgres using pgx.
package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	custerrors "github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

var _ tokens.Repo = (*Repo)(nil)

// DBTX is the subset of pgx used by the repo. *pgxpool.Pool, *pgx.Conn and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	provider_id   TEXT        NOT NULL,
	user_id       TEXT        NOT NULL,
	access_token  TEXT        NOT NULL,
	refresh_token TEXT        NOT NULL DEFAULT '',
	expires_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider_id, user_id)
)`

const (
	selectToken = `SELECT provider_id, user_id, access_token, refresh_token, expires_at, updated_at
FROM oauth_tokens WHERE provider_id = $1 AND user_id = $2`

	upsertToken = `INSERT INTO oauth_tokens (provider_id, user_id, access_token, refresh_token, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (provider_id, user_id) DO UPDATE SET
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at = EXCLUDED.expires_at,
	updated_at = EXCLUDED.updated_at`

	listTokens = `SELECT provider_id, user_id, access_token, refresh_token, expires_at, updated_at
FROM oauth_tokens WHERE provider_id = $1 ORDER BY user_id`

	listUserIDs = `SELECT user_id FROM oauth_tokens WHERE provider_id = $1 ORDER BY user_id`

	deleteToken = `DELETE FROM oauth_tokens WHERE provider_id = $1 AND user_id = $2`
)

// Repo is a Postgres-backed implementation of tokens.Repo.
type Repo struct {
	db     DBTX
	sealer tokens.Sealer
}

// New wraps an existing pool or connection.
func New(db DBTX, sealer tokens.Sealer) *Repo {
	if sealer == nil {
		sealer = tokens.NopSealer{}
	}
	return &Repo{db: db, sealer: sealer}
}

// Connect opens a pgx pool for the given DSN and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the oauth_tokens table when it does not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate oauth_tokens: %w", err)
	}
	return nil
}

func (r *Repo) scan(row pgx.Row) (*tokens.Record, error) {
	var rec tokens.Record
	if err := row.Scan(&rec.ProviderID, &rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tokens.OpenRecord(r.sealer, &rec); err != nil {
		return nil, fmt.Errorf("open token %s/%s: %w", rec.ProviderID, rec.UserID, err)
	}
	return &rec, nil
}

func (r *Repo) Get(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	rec, err := r.scan(r.db.QueryRow(ctx, selectToken, providerID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custerrors.Wrapf(custerrors.ErrNotFound, "token %s/%s", providerID, userID)
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return rec, nil
}

func (r *Repo) Save(ctx context.Context, providerID, userID string, record tokens.Record) (*tokens.Record, error) {
	record.ProviderID = providerID
	record.UserID = userID
	record.UpdatedAt = tokens.NowTimeFunc().UTC()

	sealed, err := tokens.SealRecord(r.sealer, record)
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}
	_, err = r.db.Exec(ctx, upsertToken,
		providerID, userID, sealed.AccessToken, sealed.RefreshToken, sealed.ExpiresAt, sealed.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert token: %w", err)
	}
	return &record, nil
}

func (r *Repo) List(ctx context.Context, providerID string) ([]*tokens.Record, error) {
	rows, err := r.db.Query(ctx, listTokens, providerID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	out := make([]*tokens.Record, 0)
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return out, nil
}

func (r *Repo) ListUserIDs(ctx context.Context, providerID string) ([]string, error) {
	rows, err := r.db.Query(ctx, listUserIDs, providerID)
	if err != nil {
		return nil, fmt.Errorf("list token users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list token users: %w", err)
	}
	return ids, nil
}

func (r *Repo) Delete(ctx context.Context, providerID, userID string) error {
	if _, err := r.db.Exec(ctx, deleteToken, providerID, userID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
