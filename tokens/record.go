package tokens

import "time"

// Record is the stored token set for one (provider, user) pair.
// AccessToken and RefreshToken are credentials: never log them.
type Record struct {
	ProviderID   string    `json:"provider_id" bson:"provider_id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	AccessToken  string    `json:"access_token" bson:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" bson:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// Clone returns a copy that can be handed out without sharing storage.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ExpiresWithin reports whether the access token expires at or before now+buffer.
func (r *Record) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	return !now.Before(r.ExpiresAt.Add(-buffer))
}
