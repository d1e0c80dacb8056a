package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

const headerAPIKey = "X-API-Key"

// presentedSecret returns the credential from X-API-Key or an Authorization bearer header.
func presentedSecret(r *http.Request) string {
	if key := r.Header.Get(headerAPIKey); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// SharedSecretMiddleware rejects requests that do not carry the configured API secret.
// An unset secret rejects everything.
func (s *Server) SharedSecretMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := s.config.GetAPISharedSecret()
		got := presentedSecret(r)
		if expected == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			zerolog.Ctx(r.Context()).Warn().Err(errors.ErrCredentialMissing).Str("path", r.URL.Path).Msg("api request rejected")
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", errors.ErrCredentialMissing.Error())
			return
		}
		next(w, r)
	}
}
