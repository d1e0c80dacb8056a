// Package authflow runs the authorization-code flow: it builds provider
// authorization URLs and turns provider callbacks into stored token records.
package authflow

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
	"github.com/jrsteele09/go-token-custodian/providers"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

// CallbackPath is where providers send the user back to.
const CallbackPath = "/callback"

// Exchanger is the part of the provider adapter the flow needs.
type Exchanger interface {
	AuthCodeURL(providerID, state, redirectURI string) (string, error)
	ExchangeAuthorizationCode(ctx context.Context, providerID, code, redirectURI string) (*providers.TokenSet, error)
}

// Saver persists the record created by a successful callback.
type Saver interface {
	Save(ctx context.Context, providerID, userID string, record tokens.Record) (*tokens.Record, error)
}

// Options configures a Controller.
type Options struct {
	// CallbackBaseURL is the externally visible base of this service, e.g. https://custodian.example.com.
	CallbackBaseURL    string
	AllowedReturnHosts []string
	DefaultProviderID  string
	DefaultUserID      string
	Logger             *zerolog.Logger
	Now                func() time.Time
}

// AuthorizationRequest is the result of BuildAuthorizationURL.
type AuthorizationRequest struct {
	URL        string `json:"url"`
	ProviderID string `json:"provider"`
	UserID     string `json:"userId"`
	// ReturnURL is empty when the requested one was missing or rejected.
	ReturnURL string `json:"returnUrl,omitempty"`
}

// CallbackParams are the query parameters a provider sends to the callback.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackOutcome is what the callback page renders.
type CallbackOutcome struct {
	Success    bool
	ProviderID string
	UserID     string
	// ReturnURL has been validated against the allow-list in this request.
	ReturnURL string
	ExpiresAt time.Time
	Err       error
}

// Controller drives the authorization-code flow for every configured provider.
type Controller struct {
	exchanger Exchanger
	store     Saver
	codec     *StateCodec

	redirectURI     string
	allowedHosts    []string
	defaultProvider string
	defaultUser     string
	now             func() time.Time
	log             zerolog.Logger
	tracer          trace.Tracer
}

// NewController wires a controller.
func NewController(exchanger Exchanger, store Saver, codec *StateCodec, opts Options) *Controller {
	c := &Controller{
		exchanger:       exchanger,
		store:           store,
		codec:           codec,
		redirectURI:     strings.TrimRight(opts.CallbackBaseURL, "/") + CallbackPath,
		allowedHosts:    opts.AllowedReturnHosts,
		defaultProvider: opts.DefaultProviderID,
		defaultUser:     opts.DefaultUserID,
		now:             opts.Now,
		log:             zerolog.Nop(),
		tracer:          otel.Tracer("github.com/jrsteele09/go-token-custodian/authflow"),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "authflow").Logger()
	}
	return c
}

// RedirectURI is the fixed redirect URI registered with every provider.
func (c *Controller) RedirectURI() string {
	return c.redirectURI
}

// ValidateReturnURL checks raw against the configured allow-list.
func (c *Controller) ValidateReturnURL(raw string) (string, error) {
	return ValidateReturnURL(raw, c.allowedHosts)
}

// BuildAuthorizationURL returns the provider URL the user should be sent to.
// An empty provider or user selects the configured default. A return URL that
// fails validation is dropped rather than failing the request.
func (c *Controller) BuildAuthorizationURL(ctx context.Context, providerID, userID, returnURL string) (*AuthorizationRequest, error) {
	_, span := c.tracer.Start(ctx, "authflow.BuildAuthorizationURL")
	defer span.End()

	if providerID == "" {
		providerID = c.defaultProvider
	}
	if userID == "" {
		userID = c.defaultUser
	}
	span.SetAttributes(attribute.String("provider.id", providerID))

	if returnURL != "" {
		valid, err := c.ValidateReturnURL(returnURL)
		if err != nil {
			c.log.Warn().Err(err).Str("provider", providerID).Str("user_id", userID).Msg("dropping return url")
			valid = ""
		}
		returnURL = valid
	}

	state, err := c.codec.Encode(State{
		ProviderID: providerID,
		UserID:     userID,
		IssuedAt:   c.now(),
		ReturnURL:  returnURL,
	})
	if err != nil {
		return nil, err
	}
	authURL, err := c.exchanger.AuthCodeURL(providerID, state, c.redirectURI)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &AuthorizationRequest{
		URL:        authURL,
		ProviderID: providerID,
		UserID:     userID,
		ReturnURL:  returnURL,
	}, nil
}

// HandleCallback completes the flow. It never returns nil.
func (c *Controller) HandleCallback(ctx context.Context, params CallbackParams) *CallbackOutcome {
	ctx, span := c.tracer.Start(ctx, "authflow.HandleCallback")
	defer span.End()

	out := c.route(params.State)
	span.SetAttributes(attribute.String("provider.id", out.ProviderID))
	logger := c.log.With().Str("provider", out.ProviderID).Str("user_id", out.UserID).Logger()

	fail := func(err error) *CallbackOutcome {
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback failed")
		out.Err = err
		return out
	}

	if params.Error != "" {
		logger.Warn().Str("error", params.Error).Str("error_description", params.ErrorDescription).Msg("provider denied authorization")
		msg := params.Error
		if params.ErrorDescription != "" {
			msg += ": " + params.ErrorDescription
		}
		return fail(errors.Wrap(errors.ErrAuthorizationDenied, msg))
	}
	if params.Code == "" {
		logger.Warn().Msg("callback without code")
		return fail(errors.ErrMissingCode)
	}

	ts, err := c.exchanger.ExchangeAuthorizationCode(ctx, out.ProviderID, params.Code, c.redirectURI)
	if err != nil {
		logger.Error().Err(err).Msg("authorization code exchange failed")
		return fail(err)
	}

	saved, err := c.store.Save(ctx, out.ProviderID, out.UserID, tokens.Record{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    c.now().Add(ts.ExpiresIn),
	})
	if err != nil {
		logger.Error().Err(err).Msg("saving token after code exchange")
		return fail(errors.Wrap(err, "save token"))
	}

	logger.Info().Time("expires_at", saved.ExpiresAt).Msg("provider connected")
	out.Success = true
	out.ExpiresAt = saved.ExpiresAt
	return out
}

// route decodes the state into provider, user and a re-validated return URL.
// Undecodable state falls back to the defaults with no return URL.
func (c *Controller) route(raw string) *CallbackOutcome {
	out := &CallbackOutcome{ProviderID: c.defaultProvider, UserID: c.defaultUser}

	state, err := c.codec.Decode(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("callback state rejected, using default provider and user")
		return out
	}
	out.ProviderID = state.ProviderID
	if state.UserID != "" {
		out.UserID = state.UserID
	}
	if state.ReturnURL != "" {
		valid, err := c.ValidateReturnURL(state.ReturnURL)
		if err != nil {
			c.log.Warn().Err(err).Msg("callback return url rejected")
		} else {
			out.ReturnURL = valid
		}
	}
	return out
}
