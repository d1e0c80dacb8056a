package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	FlowConfig
	ProviderConfig
	RefreshConfig
	StoreConfig
	SecurityConfig
	TelemetryConfig
}

type mainConfig struct {
	EnvVars
	Cors
	Flow
	Providers
	Refresh
	Store
	Security
	Telemetry
}

func New() Config {
	return mainConfig{}
}

// Load reads the given .env files (default ".env") into the process environment.
// Variables already set are not overridden and missing files are ignored.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
