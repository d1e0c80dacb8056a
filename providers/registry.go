package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

// Registry maps provider IDs to their configuration. It is built once at startup.
type Registry struct {
	configs map[string]Config
}

// NewRegistry validates and indexes the given configs.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{configs: make(map[string]Config, len(configs))}
	for _, c := range configs {
		if c.ID == "" {
			return nil, errors.New("provider config without id")
		}
		if _, dup := r.configs[c.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", c.ID)
		}
		if c.DisplayName == "" {
			c.DisplayName = c.ID
		}
		r.configs[c.ID] = c
	}
	return r, nil
}

// Get returns the config for id or ErrUnknownProvider.
func (r *Registry) Get(id string) (Config, error) {
	c, ok := r.configs[id]
	if !ok {
		return Config{}, errors.Wrapf(errors.ErrUnknownProvider, "provider %q", id)
	}
	return c, nil
}

// IDs returns the registered provider IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Configs returns all configs sorted by ID.
func (r *Registry) Configs() []Config {
	out := make([]Config, 0, len(r.configs))
	for _, id := range r.IDs() {
		out = append(out, r.configs[id])
	}
	return out
}

// Discover fills in missing endpoints for every provider that names an OIDC issuer.
// ctx may carry an oauth2.HTTPClient which go-oidc uses for the discovery request.
func (r *Registry) Discover(ctx context.Context) error {
	for id, c := range r.configs {
		if c.Issuer == "" || (c.AuthURL != "" && c.TokenURL != "") {
			continue
		}
		provider, err := oidc.NewProvider(ctx, c.Issuer)
		if err != nil {
			return fmt.Errorf("discover %s endpoints from %s: %w", id, c.Issuer, err)
		}
		ep := provider.Endpoint()
		if c.AuthURL == "" {
			c.AuthURL = ep.AuthURL
		}
		if c.TokenURL == "" {
			c.TokenURL = ep.TokenURL
		}
		r.configs[id] = c
	}
	return nil
}

// WithHTTPClient returns a context that makes oauth2 and go-oidc use client.
func WithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
