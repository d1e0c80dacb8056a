package config

import (
	"strings"

	"github.com/jrsteele09/go-token-custodian/internal/utils"
)

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range utils.SplitList(GetEnv("CORS_ALLOWED_ORIGINS", "")) {
		origins[strings.TrimRight(o, "/")] = nullValue{}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return "GET, DELETE, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization, X-API-Key, X-Request-ID"
}
