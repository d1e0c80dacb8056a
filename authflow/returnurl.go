package authflow

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

// ValidateReturnURL accepts raw only when it is an absolute http(s) URL whose host equals,
// or is a subdomain of, one of allowedHosts. Plain http is only accepted for localhost.
// The accepted URL is returned exactly as given, minus surrounding whitespace.
func ValidateReturnURL(raw string, allowedHosts []string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidReturnURL, "parse %q", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())

	switch {
	case scheme != "http" && scheme != "https":
		return "", errors.Wrapf(errors.ErrInvalidReturnURL, "scheme %q", u.Scheme)
	case host == "":
		return "", errors.Wrapf(errors.ErrInvalidReturnURL, "missing host")
	case u.User != nil:
		return "", errors.Wrapf(errors.ErrInvalidReturnURL, "userinfo not allowed")
	case scheme == "http" && host != "localhost":
		return "", errors.Wrapf(errors.ErrInvalidReturnURL, "http only allowed for localhost, got %q", host)
	}

	if !hostAllowed(host, allowedHosts) {
		return "", errors.Wrapf(errors.ErrInvalidReturnURL, "host %q not allowed", host)
	}
	return trimmed, nil
}

func hostAllowed(host string, allowedHosts []string) bool {
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
