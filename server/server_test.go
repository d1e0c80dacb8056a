package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-token-custodian/authflow"
	"github.com/jrsteele09/go-token-custodian/custodian"
	"github.com/jrsteele09/go-token-custodian/internal/config"
	"github.com/jrsteele09/go-token-custodian/providers"
	"github.com/jrsteele09/go-token-custodian/server"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

const secret = "s3cret"

// fakeProvider stands in for the provider adapter.
type fakeProvider struct {
	reg *providers.Registry
}

func (f *fakeProvider) AuthCodeURL(providerID, state, redirectURI string) (string, error) {
	if _, err := f.reg.Get(providerID); err != nil {
		return "", err
	}
	q := url.Values{"state": {state}, "redirect_uri": {redirectURI}, "response_type": {"code"}}
	return "https://" + providerID + ".example.net/authorize?" + q.Encode(), nil
}

func (f *fakeProvider) ExchangeAuthorizationCode(_ context.Context, providerID, code, _ string) (*providers.TokenSet, error) {
	if code != "good-code" {
		return nil, &providers.ExchangeError{ProviderID: providerID, Operation: providers.OpAuthorizationCode, StatusCode: 400, Code: "invalid_grant"}
	}
	return &providers.TokenSet{AccessToken: "access-" + providerID, RefreshToken: "refresh-" + providerID, ExpiresIn: time.Hour}, nil
}

func (f *fakeProvider) ExchangeRefreshToken(_ context.Context, providerID, _ string) (*providers.TokenSet, error) {
	return nil, &providers.ExchangeError{ProviderID: providerID, Operation: providers.OpRefreshToken, StatusCode: 400, Code: "invalid_grant"}
}

type fixture struct {
	srv   *server.Server
	store *tokens.InMemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("API_SHARED_SECRET", secret)
	t.Setenv("DEFAULT_PROVIDER", "kroger")
	t.Setenv("BASE_URL", "https://custodian.example.com")
	t.Setenv("RETURN_URL_ALLOWLIST", "app.example.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("ENV", "TEST")
	cfg := config.New()

	reg, err := providers.NewRegistry(
		providers.Config{ID: "kroger", DisplayName: "Kroger", ClientID: "id", ClientSecret: "secret"},
		providers.Config{ID: "google", DisplayName: "Google"},
	)
	require.NoError(t, err)
	fp := &fakeProvider{reg: reg}
	store := tokens.NewInMemoryRepo()

	codec, err := authflow.NewStateCodec("state-secret", cfg.GetStateMaxAge())
	require.NoError(t, err)
	flow := authflow.NewController(fp, store, codec, authflow.Options{
		CallbackBaseURL:    cfg.GetBaseURL(),
		AllowedReturnHosts: cfg.GetReturnURLAllowList(),
		DefaultProviderID:  cfg.GetDefaultProvider(),
		DefaultUserID:      cfg.GetDefaultUserID(),
	})
	resolver := custodian.NewResolver(store, fp, custodian.Options{})

	srv, err := server.New(cfg, server.Services{Resolver: resolver, Flow: flow, Registry: reg})
	require.NoError(t, err)
	return &fixture{srv: srv, store: store}
}

func (f *fixture) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func apiKey() http.Header {
	return http.Header{"X-Api-Key": {secret}}
}

func TestHealthAndProviders(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/healthz", http.Header{"X-Request-Id": {"req-123"}})
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/api/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	require.Equal(t, "google", list[0]["id"])
	require.Equal(t, true, list[1]["configured"])
}

func TestAuthURL(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/auth/url?provider=google&user_id=u1&return_url="+url.QueryEscape("https://app.example.com/x"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "google", body["provider"])
	require.Equal(t, "u1", body["userId"])
	require.True(t, strings.HasPrefix(body["url"].(string), "https://google.example.net/authorize?"))

	rec = f.do(t, http.MethodGet, "/auth/url", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "kroger", decode(t, rec)["provider"])

	rec = f.do(t, http.MethodGet, "/auth/url?provider=nope", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSharedSecret(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		header http.Header
	}{
		{"missing", nil},
		{"wrong api key", http.Header{"X-Api-Key": {"nope"}}},
		{"wrong bearer", http.Header{"Authorization": {"Bearer nope"}}},
		{"basic scheme", http.Header{"Authorization": {"Basic " + secret}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/token/u1", tt.header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "unauthorized", decode(t, rec)["error"])
		})
	}

	t.Run("unset secret rejects everything", func(t *testing.T) {
		t.Setenv("API_SHARED_SECRET", "")
		rec := f.do(t, http.MethodGet, "/api/status/u1", http.Header{"X-Api-Key": {""}})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTokenEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("not connected returns auth url", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/token/u1", apiKey())
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode(t, rec)
		require.Equal(t, "not_connected", body["error"])
		require.Contains(t, body["authUrl"], "https://kroger.example.net/authorize")
	})

	t.Run("connected returns token", func(t *testing.T) {
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		_, err := f.store.Save(ctx, "kroger", "u1", tokens.Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires})
		require.NoError(t, err)

		rec := f.do(t, http.MethodGet, "/api/token/u1", http.Header{"Authorization": {"Bearer " + secret}})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, "a1", body["accessToken"])
		require.Equal(t, expires.Format(time.RFC3339), body["expiresAt"])
	})

	t.Run("expired token with failing refresh needs reauthorization", func(t *testing.T) {
		_, err := f.store.Save(ctx, "kroger", "u2", tokens.Record{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute)})
		require.NoError(t, err)

		rec := f.do(t, http.MethodGet, "/api/token/u2", apiKey())
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "reauthorization_required", decode(t, rec)["error"])

		rec = f.do(t, http.MethodGet, "/api/status/u2", apiKey())
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, false, body["connected"])
		require.Equal(t, true, body["needsReauthorization"])
		require.NotEmpty(t, body["authUrl"])

		_, err = f.store.Get(ctx, "kroger", "u2")
		require.NoError(t, err)
	})

	t.Run("status connected", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/status/u1?provider=kroger", apiKey())
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, true, body["connected"])
		require.NotContains(t, body, "authUrl")
	})

	t.Run("disconnect", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/token/u1", apiKey())
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/status/u1", apiKey())
		body := decode(t, rec)
		require.Equal(t, false, body["connected"])
		require.Equal(t, false, body["needsReauthorization"])
	})

	t.Run("unknown provider", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/token/u1?provider=nope", apiKey())
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCallback(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/auth/url?provider=google&user_id=u9&return_url="+url.QueryEscape("https://app.example.com/done"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	authURL, err := url.Parse(decode(t, rec)["url"].(string))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.Equal(t, "https://custodian.example.com/callback", authURL.Query().Get("redirect_uri"))

	t.Run("success", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/callback?code=good-code&state="+url.QueryEscape(state), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "Google connected")
		require.Contains(t, string(body), `href="https://app.example.com/done"`)

		stored, err := f.store.Get(context.Background(), "google", "u9")
		require.NoError(t, err)
		require.Equal(t, "access-google", stored.AccessToken)
	})

	t.Run("form post", func(t *testing.T) {
		form := url.Values{"code": {"good-code"}, "state": {state}}
		req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `href="https://app.example.com/done"`)
	})

	t.Run("provider denied", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/callback?error=access_denied&state="+url.QueryEscape(state), nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "cancelled or denied")
		require.NotContains(t, rec.Body.String(), "app.example.com")
	})

	t.Run("exchange failure", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/callback?code=bad&state="+url.QueryEscape(state), nil)
		require.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := server.ParseTemplate("callback.html")
	require.NoError(t, err)
	require.NotNil(t, tmpl)

	_, err = server.ParseTemplate("missing.html")
	require.Error(t, err)
}

func TestCorsPreflight(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodOptions, "/api/token/u1", http.Header{"Origin": {"https://app.example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodOptions, "/api/token/u1", http.Header{"Origin": {"https://evil.example.com"}})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	f := newFixture(t)
	h := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.srv.APIMiddleware()...)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
