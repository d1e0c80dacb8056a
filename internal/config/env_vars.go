package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelEnvVar = "LOG_LEVEL"
	baseURLVar     = "BASE_URL"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	IsDev() bool
	GetLogLevel() zerolog.Level
	GetBaseURL() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Token Custodian")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (e EnvVars) IsDev() bool {
	return strings.EqualFold(e.GetEnv(), "DEV")
}

func (EnvVars) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(GetEnv(logLevelEnvVar, "info")))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// GetBaseURL returns the externally visible base URL (e.g., "https://custodian.example.com").
// The provider redirect URI is derived from it.
func (EnvVars) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses envVar with time.ParseDuration, falling back to defaultValue.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return d
}

func GetBool(envVar string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return b
}

func GetInt(envVar string, defaultValue int) int {
	i, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return i
}
