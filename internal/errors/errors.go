package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Common error types for the token custodian
var (
	// Authorization flow errors
	ErrAuthorizationDenied = errors.New("authorization denied by provider")
	ErrInvalidState        = errors.New("invalid authorization state")
	ErrInvalidReturnURL    = errors.New("return url not allowed")
	ErrMissingCode         = errors.New("missing authorization code")

	// Provider errors
	ErrProviderExchange = errors.New("provider token exchange failed")
	ErrUnknownProvider  = errors.New("unknown provider")

	// Token errors
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrNotConnected     = errors.New("no token stored for user")
	ErrLeaseNotAcquired = errors.New("refresh lease not acquired")

	// Boundary errors
	ErrCredentialMissing = errors.New("missing or invalid api credential")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf annotates err with a formatted message and a stack trace. Returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// Wrap annotates err with message and a stack trace. Returns nil when err is nil.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Errorf formats a new error carrying a stack trace.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers importing this package as
// "errors" do not need the standard library alias as well.
func New(text string) error {
	return errors.New(text)
}
