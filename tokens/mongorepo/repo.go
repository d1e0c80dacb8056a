// Package mongorepo stores custodian token records in MongoDB.
package mongorepo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	custerrors "github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

// CollectionName is the collection holding one document per (provider, user).
const CollectionName = "oauth_tokens"

var _ tokens.Repo = (*Repo)(nil)

// Repo is a MongoDB-backed implementation of tokens.Repo.
type Repo struct {
	tokens *mongo.Collection
	sealer tokens.Sealer
}

// New creates a repo backed by the given database. A nil sealer stores
// credentials unencrypted.
func New(db *mongo.Database, sealer tokens.Sealer) *Repo {
	if sealer == nil {
		sealer = tokens.NopSealer{}
	}
	return &Repo{
		tokens: db.Collection(CollectionName),
		sealer: sealer,
	}
}

// EnsureIndexes creates the unique (provider_id, user_id) index that backs the upsert key.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	_, err := r.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("provider_user_unique"),
	})
	if err != nil {
		return fmt.Errorf("create token index: %w", err)
	}
	return nil
}

func keyFilter(providerID, userID string) bson.M {
	return bson.M{"provider_id": providerID, "user_id": userID}
}

func (r *Repo) Get(ctx context.Context, providerID, userID string) (*tokens.Record, error) {
	var rec tokens.Record
	err := r.tokens.FindOne(ctx, keyFilter(providerID, userID)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, custerrors.Wrapf(custerrors.ErrNotFound, "token %s/%s", providerID, userID)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	if err := tokens.OpenRecord(r.sealer, &rec); err != nil {
		return nil, fmt.Errorf("open token %s/%s: %w", providerID, userID, err)
	}
	return &rec, nil
}

// Save upserts the record keyed on (provider_id, user_id).
func (r *Repo) Save(ctx context.Context, providerID, userID string, record tokens.Record) (*tokens.Record, error) {
	record.ProviderID = providerID
	record.UserID = userID
	record.UpdatedAt = tokens.NowTimeFunc().UTC()

	sealed, err := tokens.SealRecord(r.sealer, record)
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}
	upd := bson.M{"$set": bson.M{
		"access_token":  sealed.AccessToken,
		"refresh_token": sealed.RefreshToken,
		"expires_at":    sealed.ExpiresAt,
		"updated_at":    sealed.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.tokens.UpdateOne(ctx, keyFilter(providerID, userID), upd, opts); err != nil {
		return nil, fmt.Errorf("upsert token: %w", err)
	}
	return &record, nil
}

func (r *Repo) List(ctx context.Context, providerID string) ([]*tokens.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cursor, err := r.tokens.Find(ctx, bson.M{"provider_id": providerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	out := make([]*tokens.Record, 0)
	for cursor.Next(ctx) {
		var rec tokens.Record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode token: %w", err)
		}
		if err := tokens.OpenRecord(r.sealer, &rec); err != nil {
			return nil, fmt.Errorf("open token %s/%s: %w", rec.ProviderID, rec.UserID, err)
		}
		out = append(out, &rec)
	}
	return out, cursor.Err()
}

// ListUserIDs projects only user_id so documents that cannot be decoded or opened
// are still enumerated.
func (r *Repo) ListUserIDs(ctx context.Context, providerID string) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "user_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "user_id", Value: 1}})
	cursor, err := r.tokens.Find(ctx, bson.M{"provider_id": providerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list token users: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	out := make([]string, 0)
	for cursor.Next(ctx) {
		userID, ok := cursor.Current.Lookup("user_id").StringValueOK()
		if !ok {
			continue
		}
		out = append(out, userID)
	}
	return out, cursor.Err()
}

func (r *Repo) Delete(ctx context.Context, providerID, userID string) error {
	if _, err := r.tokens.DeleteOne(ctx, keyFilter(providerID, userID)); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
