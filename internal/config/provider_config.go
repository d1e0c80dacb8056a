package config

import (
	"time"

	"github.com/jrsteele09/go-token-custodian/internal/utils"
	"github.com/jrsteele09/go-token-custodian/providers"
)

type ProviderConfig interface {
	GetProviderIDs() []string
	GetProviders() []providers.Config
	GetProviderTimeout() time.Duration
}

type Providers struct{}

var _ ProviderConfig = Providers{}

// GetProviderIDs lists the enabled providers. Unknown IDs need their endpoints
// (or an issuer) configured through the environment.
func (Providers) GetProviderIDs() []string {
	return utils.SplitList(GetEnv("PROVIDERS", "kroger,google,microsoft"))
}

// GetProviders merges the built-in defaults with <ID>_* environment overrides.
func (p Providers) GetProviders() []providers.Config {
	defaults := providers.Defaults()
	ids := p.GetProviderIDs()
	out := make([]providers.Config, 0, len(ids))
	for _, id := range ids {
		cfg, ok := defaults[id]
		if !ok {
			cfg = providers.Config{ID: id, AuthStyle: providers.AuthStyleParams, DefaultExpiresIn: time.Hour}
		}
		prefix := utils.EnvKey(id) + "_"
		cfg.DisplayName = GetEnv(prefix+"DISPLAY_NAME", cfg.DisplayName)
		cfg.ClientID = GetEnv(prefix+"CLIENT_ID", cfg.ClientID)
		cfg.ClientSecret = GetEnv(prefix+"CLIENT_SECRET", cfg.ClientSecret)
		cfg.AuthURL = GetEnv(prefix+"AUTH_URL", cfg.AuthURL)
		cfg.TokenURL = GetEnv(prefix+"TOKEN_URL", cfg.TokenURL)
		cfg.Issuer = GetEnv(prefix+"ISSUER", cfg.Issuer)
		cfg.AuthStyle = providers.AuthStyle(GetEnv(prefix+"AUTH_STYLE", string(cfg.AuthStyle)))
		if scopes := utils.SplitList(GetEnv(prefix+"SCOPES", "")); len(scopes) > 0 {
			cfg.Scopes = scopes
		}
		cfg.DefaultExpiresIn = GetDuration(prefix+"DEFAULT_EXPIRES_IN", cfg.DefaultExpiresIn)
		out = append(out, cfg)
	}
	return out
}

func (Providers) GetProviderTimeout() time.Duration {
	return GetDuration("PROVIDER_TIMEOUT", providers.DefaultTimeout)
}
