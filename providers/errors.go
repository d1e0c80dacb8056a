package providers

import (
	"fmt"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

// Operation names carried by ExchangeError.
const (
	OpAuthorizationCode = "authorization_code"
	OpRefreshToken      = "refresh_token"
)

// ExchangeError describes a failed call to a provider token endpoint.
// StatusCode is 0 when no HTTP response was received.
type ExchangeError struct {
	ProviderID  string
	Operation   string
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("%s %s exchange failed", e.ProviderID, e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += " - " + e.Description
		}
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errors.ErrProviderExchange) match any exchange failure.
func (e *ExchangeError) Is(target error) bool {
	return target == errors.ErrProviderExchange
}

// InvalidGrant reports whether the provider rejected the grant itself (revoked or reused refresh token, bad code).
func (e *ExchangeError) InvalidGrant() bool {
	return e.Code == "invalid_grant"
}
