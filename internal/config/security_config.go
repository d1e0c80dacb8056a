package config

type SecurityConfig interface {
	GetAPISharedSecret() string
	GetTokenEncryptionKey() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetAPISharedSecret guards the token and status endpoints. Empty disables them.
func (Security) GetAPISharedSecret() string {
	return GetEnv("API_SHARED_SECRET", "")
}

// GetTokenEncryptionKey seals tokens at rest in durable stores. Empty stores them as is.
func (Security) GetTokenEncryptionKey() string {
	return GetEnv("TOKEN_ENC_KEY", "")
}
