package config

import (
	"time"

	"github.com/jrsteele09/go-token-custodian/internal/utils"
	"github.com/jrsteele09/go-token-custodian/providers"
)

type FlowConfig interface {
	GetStateSecret() string
	GetStateMaxAge() time.Duration
	GetReturnURLAllowList() []string
	GetDefaultProvider() string
	GetDefaultUserID() string
}

type Flow struct{}

var _ FlowConfig = Flow{}

func (Flow) GetStateSecret() string {
	return GetEnv("STATE_SECRET", "")
}

// GetStateMaxAge is how long an issued authorization URL stays usable.
func (Flow) GetStateMaxAge() time.Duration {
	return GetDuration("STATE_MAX_AGE", 15*time.Minute)
}

func (Flow) GetReturnURLAllowList() []string {
	return utils.SplitList(GetEnv("RETURN_URL_ALLOWLIST", "localhost"))
}

func (Flow) GetDefaultProvider() string {
	return GetEnv("DEFAULT_PROVIDER", providers.Kroger)
}

func (Flow) GetDefaultUserID() string {
	return GetEnv("DEFAULT_USER_ID", "default")
}
