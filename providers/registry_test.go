package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/providers"
)

func TestRegistry(t *testing.T) {
	t.Run("ids are sorted and display name defaults to id", func(t *testing.T) {
		reg, err := providers.NewRegistry(
			providers.Config{ID: "microsoft"},
			providers.Config{ID: "google", DisplayName: "Google"},
			providers.Config{ID: "kroger"},
		)
		require.NoError(t, err)
		require.Equal(t, []string{"google", "kroger", "microsoft"}, reg.IDs())

		cfg, err := reg.Get("kroger")
		require.NoError(t, err)
		require.Equal(t, "kroger", cfg.DisplayName)
		require.Len(t, reg.Configs(), 3)
	})

	t.Run("duplicate and empty ids rejected", func(t *testing.T) {
		_, err := providers.NewRegistry(providers.Config{ID: "a"}, providers.Config{ID: "a"})
		require.Error(t, err)
		_, err = providers.NewRegistry(providers.Config{})
		require.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		reg, err := providers.NewRegistry()
		require.NoError(t, err)
		_, err = reg.Get("kroger")
		require.ErrorIs(t, err, errors.ErrUnknownProvider)
	})
}

func TestRegistry_Discover(t *testing.T) {
	var issuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/oauth2/authorize",
			"token_endpoint":         issuer + "/oauth2/token",
			"jwks_uri":               issuer + "/keys",
		})
	}))
	defer srv.Close()
	issuer = srv.URL

	reg, err := providers.NewRegistry(
		providers.Config{ID: "oidc", Issuer: issuer},
		providers.Config{ID: "partial", Issuer: issuer, TokenURL: "https://fixed.example.com/token"},
		providers.Config{ID: "static", AuthURL: "https://a", TokenURL: "https://t"},
	)
	require.NoError(t, err)
	require.NoError(t, reg.Discover(context.Background()))

	cfg, err := reg.Get("oidc")
	require.NoError(t, err)
	require.Equal(t, issuer+"/oauth2/authorize", cfg.AuthURL)
	require.Equal(t, issuer+"/oauth2/token", cfg.TokenURL)

	cfg, err = reg.Get("partial")
	require.NoError(t, err)
	require.Equal(t, issuer+"/oauth2/authorize", cfg.AuthURL)
	require.Equal(t, "https://fixed.example.com/token", cfg.TokenURL)

	cfg, err = reg.Get("static")
	require.NoError(t, err)
	require.Equal(t, "https://a", cfg.AuthURL)
}

func TestDefaults(t *testing.T) {
	defaults := providers.Defaults()
	require.Equal(t, providers.AuthStyleHeader, defaults[providers.Kroger].AuthStyle)
	require.Equal(t, providers.AuthStyleParams, defaults[providers.Google].AuthStyle)
	require.Equal(t, "offline", defaults[providers.Google].ExtraAuthParams["access_type"])
	require.Contains(t, defaults[providers.Microsoft].Scopes, "offline_access")
}
