package config

import "strings"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"

	LeaseNone  = "none"
	LeaseRedis = "redis"
)

type StoreConfig interface {
	GetTokenStore() string
	GetDatabaseURL() string
	GetMongoURI() string
	GetMongoDatabase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRefreshLease() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetTokenStore() string {
	return strings.ToLower(GetEnv("TOKEN_STORE", StoreMemory))
}

func (Store) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

func (Store) GetMongoURI() string {
	return GetEnv("MONGO_URI", "mongodb://localhost:27017")
}

func (Store) GetMongoDatabase() string {
	return GetEnv("MONGO_DATABASE", "custodian")
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Store) GetRedisDB() int {
	return GetInt("REDIS_DB", 0)
}

// GetRefreshLease selects the cross-instance refresh lock. Only needed when
// several instances share one durable store.
func (Store) GetRefreshLease() string {
	return strings.ToLower(GetEnv("REFRESH_LEASE", LeaseNone))
}
