package providers

import (
	"time"

	"golang.org/x/oauth2"
)

// AuthStyle selects how client credentials are presented to the token endpoint.
type AuthStyle string

const (
	// AuthStyleHeader sends client id/secret as an HTTP basic auth header.
	AuthStyleHeader AuthStyle = "header"
	// AuthStyleParams sends client id/secret in the form body.
	AuthStyleParams AuthStyle = "params"
)

func (s AuthStyle) oauth2() oauth2.AuthStyle {
	switch s {
	case AuthStyleHeader:
		return oauth2.AuthStyleInHeader
	case AuthStyleParams:
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

// Config is the static configuration of one external OAuth2 provider.
type Config struct {
	ID          string
	DisplayName string

	AuthURL  string
	TokenURL string
	// Issuer enables OIDC discovery of AuthURL/TokenURL when either is empty.
	Issuer string

	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthStyle    AuthStyle

	// ExtraAuthParams are appended to the authorization URL, e.g. access_type=offline.
	ExtraAuthParams map[string]string

	// DefaultExpiresIn is used when a token response carries no expires_in.
	DefaultExpiresIn time.Duration
}

// Configured reports whether the provider has client credentials.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c Config) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: c.AuthStyle.oauth2(),
		},
	}
}

// Well known provider IDs.
const (
	Kroger    = "kroger"
	Google    = "google"
	Microsoft = "microsoft"
)

// Defaults returns the built-in endpoint and scope settings for the known providers.
// Credentials are left empty and are expected to come from configuration.
func Defaults() map[string]Config {
	return map[string]Config{
		Kroger: {
			ID:               Kroger,
			DisplayName:      "Kroger",
			AuthURL:          "https://api.kroger.com/v1/connect/oauth2/authorize",
			TokenURL:         "https://api.kroger.com/v1/connect/oauth2/token",
			Scopes:           []string{"cart.basic:write", "profile.compact"},
			AuthStyle:        AuthStyleHeader,
			DefaultExpiresIn: 30 * time.Minute,
		},
		Google: {
			ID:          Google,
			DisplayName: "Google",
			AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.send",
				"https://www.googleapis.com/auth/calendar.events",
			},
			AuthStyle: AuthStyleParams,
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
			DefaultExpiresIn: time.Hour,
		},
		Microsoft: {
			ID:          Microsoft,
			DisplayName: "Microsoft",
			AuthURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scopes:      []string{"offline_access", "Mail.Send", "Calendars.ReadWrite"},
			AuthStyle:   AuthStyleParams,
			ExtraAuthParams: map[string]string{
				"response_mode": "query",
			},
			DefaultExpiresIn: time.Hour,
		},
	}
}
