package tokens_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-token-custodian/tokens"
	"github.com/stretchr/testify/require"
)

func TestNewSealer_EmptyKeyIsNop(t *testing.T) {
	s, err := tokens.NewSealer("  ")
	require.NoError(t, err)
	require.IsType(t, tokens.NopSealer{}, s)

	out, err := s.Seal("secret")
	require.NoError(t, err)
	require.Equal(t, "secret", out)
}

func TestAEADSealer_RoundTrip(t *testing.T) {
	s, err := tokens.NewSealer("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := s.Seal("refresh-token-value")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sealed, "v1:"))
	require.NotContains(t, sealed, "refresh-token-value")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "refresh-token-value", plain)

	t.Run("nonce differs per seal", func(t *testing.T) {
		again, err := s.Seal("refresh-token-value")
		require.NoError(t, err)
		require.NotEqual(t, sealed, again)
	})

	t.Run("legacy plaintext passes through", func(t *testing.T) {
		plain, err := s.Open("not-sealed")
		require.NoError(t, err)
		require.Equal(t, "not-sealed", plain)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		other, err := tokens.NewSealer("a different key")
		require.NoError(t, err)
		_, err = other.Open(sealed)
		require.Error(t, err)
	})

	t.Run("empty stays empty", func(t *testing.T) {
		out, err := s.Seal("")
		require.NoError(t, err)
		require.Empty(t, out)
	})
}

func TestSealRecord(t *testing.T) {
	s, err := tokens.NewSealer("k")
	require.NoError(t, err)

	rec := tokens.Record{ProviderID: "p", UserID: "u", AccessToken: "a", RefreshToken: "r"}
	sealed, err := tokens.SealRecord(s, rec)
	require.NoError(t, err)
	require.NotEqual(t, "a", sealed.AccessToken)
	require.NotEqual(t, "r", sealed.RefreshToken)
	require.Equal(t, "u", sealed.UserID)

	require.NoError(t, tokens.OpenRecord(s, &sealed))
	require.Equal(t, rec, sealed)
}
