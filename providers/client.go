// Package providers talks to the token endpoints of the external OAuth2 providers.
package providers

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

// DefaultTimeout bounds every call to a provider token endpoint.
const DefaultTimeout = 15 * time.Second

// TokenSet is the result of a successful exchange. On a refresh grant that does not
// rotate, RefreshToken carries the presented refresh token forward.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Exchanger performs the two token grants the custodian needs.
type Exchanger interface {
	ExchangeAuthorizationCode(ctx context.Context, providerID, code, redirectURI string) (*TokenSet, error)
	ExchangeRefreshToken(ctx context.Context, providerID, refreshToken string) (*TokenSet, error)
	AuthCodeURL(providerID, state, redirectURI string) (string, error)
}

var _ Exchanger = (*Client)(nil)

// Client is the oauth2-backed Exchanger.
type Client struct {
	registry   *Registry
	httpClient *http.Client
	tracer     trace.Tracer
	now        func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-exchange timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a Client over registry.
func NewClient(registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:   registry,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tracer:     otel.Tracer("github.com/jrsteele09/go-token-custodian/providers"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the provider registry the client was built with.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Timeout is the bound applied to each exchange.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// AuthCodeURL builds the provider authorization URL carrying client id, redirect URI,
// response_type=code, scopes, state and any extra provider parameters.
func (c *Client) AuthCodeURL(providerID, state, redirectURI string) (string, error) {
	cfg, err := c.registry.Get(providerID)
	if err != nil {
		return "", err
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(cfg.ExtraAuthParams))
	for k, v := range cfg.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.oauth2Config(redirectURI).AuthCodeURL(state, opts...), nil
}

// ExchangeAuthorizationCode trades a single-use authorization code for a token set.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, providerID, code, redirectURI string) (*TokenSet, error) {
	cfg, err := c.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	ctx, span := c.startSpan(ctx, "providers.ExchangeAuthorizationCode", providerID)
	defer span.End()

	tok, err := cfg.oauth2Config(redirectURI).Exchange(WithHTTPClient(ctx, c.httpClient), code)
	if err != nil {
		return nil, c.fail(span, exchangeError(providerID, OpAuthorizationCode, err))
	}
	return c.tokenSet(cfg, tok), nil
}

// ExchangeRefreshToken runs the refresh_token grant. It is never retried.
func (c *Client) ExchangeRefreshToken(ctx context.Context, providerID, refreshToken string) (*TokenSet, error) {
	cfg, err := c.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	ctx, span := c.startSpan(ctx, "providers.ExchangeRefreshToken", providerID)
	defer span.End()

	if refreshToken == "" {
		return nil, c.fail(span, &ExchangeError{
			ProviderID: providerID,
			Operation:  OpRefreshToken,
			Code:       "invalid_grant",
			Err:        errors.New("no refresh token stored"),
		})
	}

	src := cfg.oauth2Config("").TokenSource(WithHTTPClient(ctx, c.httpClient), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.fail(span, exchangeError(providerID, OpRefreshToken, err))
	}
	return c.tokenSet(cfg, tok), nil
}

func (c *Client) startSpan(ctx context.Context, name, providerID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("provider.id", providerID)))
}

func (c *Client) fail(span trace.Span, err *ExchangeError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Code)
	span.SetAttributes(attribute.Int("http.status_code", err.StatusCode))
	return err
}

func (c *Client) tokenSet(cfg Config, tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	switch {
	case tok.ExpiresIn > 0:
		ts.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		ts.ExpiresIn = tok.Expiry.Sub(c.now())
	default:
		ts.ExpiresIn = cfg.DefaultExpiresIn
	}
	return ts
}

func exchangeError(providerID, op string, err error) *ExchangeError {
	ee := &ExchangeError{ProviderID: providerID, Operation: op, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ee.Code = re.ErrorCode
		ee.Description = re.ErrorDescription
		if re.Response != nil {
			ee.StatusCode = re.Response.StatusCode
		}
		return ee
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		ee.Code = "timeout"
	}
	return ee
}
