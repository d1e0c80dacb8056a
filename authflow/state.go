package authflow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

// DefaultStateMaxAge bounds how long a user may take at the provider's consent screen.
const DefaultStateMaxAge = 15 * time.Minute

// State is the routing information carried through the provider round trip.
// It is never stored; a decoded State is still untrusted input.
type State struct {
	ProviderID string
	UserID     string
	IssuedAt   time.Time
	ReturnURL  string
	Nonce      string
}

type stateClaims struct {
	Provider  string `json:"prv"`
	User      string `json:"uid"`
	ReturnURL string `json:"ret,omitempty"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies State values as HS256 JWTs.
type StateCodec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewStateCodec creates a codec. maxAge <= 0 selects DefaultStateMaxAge.
func NewStateCodec(secret string, maxAge time.Duration) (*StateCodec, error) {
	if secret == "" {
		return nil, errors.New("state secret is required")
	}
	if maxAge <= 0 {
		maxAge = DefaultStateMaxAge
	}
	return &StateCodec{secret: []byte(secret), maxAge: maxAge, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (c *StateCodec) WithClock(now func() time.Time) *StateCodec {
	c.now = now
	return c
}

// Encode signs s. IssuedAt and Nonce are filled in when empty.
func (c *StateCodec) Encode(s State) (string, error) {
	if s.IssuedAt.IsZero() {
		s.IssuedAt = c.now()
	}
	if s.Nonce == "" {
		s.Nonce = uuid.NewString()
	}
	claims := stateClaims{
		Provider:  s.ProviderID,
		User:      s.UserID,
		ReturnURL: s.ReturnURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.Nonce,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.IssuedAt.Add(c.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign state")
	}
	return signed, nil
}

// Decode verifies the signature and age of raw. Every failure matches errors.ErrInvalidState.
func (c *StateCodec) Decode(raw string) (*State, error) {
	if raw == "" {
		return nil, errors.Wrap(errors.ErrInvalidState, "empty state")
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(raw, &claims, c.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidState, err)
	}
	if claims.Provider == "" {
		return nil, errors.Wrap(errors.ErrInvalidState, "state without provider")
	}

	s := &State{
		ProviderID: claims.Provider,
		UserID:     claims.User,
		ReturnURL:  claims.ReturnURL,
		Nonce:      claims.ID,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	return s, nil
}

func (c *StateCodec) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.secret, nil
}
