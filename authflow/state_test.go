package authflow_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-token-custodian/authflow"
	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

func TestStateCodec(t *testing.T) {
	issued := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := issued
	codec, err := authflow.NewStateCodec("state-secret", 10*time.Minute)
	require.NoError(t, err)
	codec.WithClock(func() time.Time { return clock })

	raw, err := codec.Encode(authflow.State{
		ProviderID: "google",
		UserID:     "user-7",
		IssuedAt:   issued,
		ReturnURL:  "https://app.example.com/done",
	})
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		clock = issued.Add(time.Minute)
		s, err := codec.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, "google", s.ProviderID)
		require.Equal(t, "user-7", s.UserID)
		require.Equal(t, "https://app.example.com/done", s.ReturnURL)
		require.True(t, issued.Equal(s.IssuedAt))
		require.NotEmpty(t, s.Nonce)
	})

	t.Run("nonce differs per state", func(t *testing.T) {
		other, err := codec.Encode(authflow.State{ProviderID: "google", UserID: "user-7", IssuedAt: issued})
		require.NoError(t, err)
		require.NotEqual(t, raw, other)
	})

	t.Run("expired", func(t *testing.T) {
		clock = issued.Add(11 * time.Minute)
		_, err := codec.Decode(raw)
		require.ErrorIs(t, err, errors.ErrInvalidState)
	})

	t.Run("tampered payload", func(t *testing.T) {
		clock = issued.Add(time.Minute)
		parts := strings.Split(raw, ".")
		require.Len(t, parts, 3)
		forged := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := codec.Decode(forged)
		require.ErrorIs(t, err, errors.ErrInvalidState)
	})

	t.Run("other secret", func(t *testing.T) {
		clock = issued.Add(time.Minute)
		other, err := authflow.NewStateCodec("other-secret", 10*time.Minute)
		require.NoError(t, err)
		other.WithClock(func() time.Time { return clock })
		_, err = other.Decode(raw)
		require.ErrorIs(t, err, errors.ErrInvalidState)
	})

	t.Run("unsigned token", func(t *testing.T) {
		clock = issued.Add(time.Minute)
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"prv": "google", "uid": "user-7", "iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = codec.Decode(unsigned)
		require.ErrorIs(t, err, errors.ErrInvalidState)
	})

	t.Run("garbage and empty", func(t *testing.T) {
		_, err := codec.Decode("not-a-jwt")
		require.ErrorIs(t, err, errors.ErrInvalidState)
		_, err = codec.Decode("")
		require.ErrorIs(t, err, errors.ErrInvalidState)
	})

	t.Run("secret required", func(t *testing.T) {
		_, err := authflow.NewStateCodec("", time.Minute)
		require.Error(t, err)
	})
}
