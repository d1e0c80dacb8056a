package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

type authURLResponse struct {
	URL      string `json:"url"`
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
}

type reauthResponse struct {
	Error   string `json:"error"`
	AuthURL string `json:"authUrl,omitempty"`
}

type statusResponse struct {
	Connected            bool      `json:"connected"`
	NeedsReauthorization bool      `json:"needsReauthorization"`
	ExpiresAt            time.Time `json:"expiresAt,omitzero"`
	AuthURL              string    `json:"authUrl,omitempty"`
}

type providerResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Configured  bool   `json:"configured"`
}

// providerParam returns the requested provider or the default, and whether it is registered.
func (s *Server) providerParam(r *http.Request) (string, bool) {
	providerID := r.URL.Query().Get(ParamProvider)
	if providerID == "" {
		providerID = s.config.GetDefaultProvider()
	}
	_, err := s.registry.Get(providerID)
	return providerID, err == nil
}

// authURLFor builds a fresh authorization URL for the reconnect hint. Failures only drop the hint.
func (s *Server) authURLFor(r *http.Request, providerID, userID string) string {
	req, err := s.flow.BuildAuthorizationURL(r.Context(), providerID, userID, "")
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("building reconnect url")
		return ""
	}
	return req.URL
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if s.sweeper != nil {
			if last := s.sweeper.LastReport(); last != nil {
				body["lastSweep"] = map[string]any{
					"finishedAt": last.Finished,
					"attempted":  last.Attempted,
					"refreshed":  last.Refreshed,
					"failed":     last.Failed,
				}
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) ProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs := s.registry.Configs()
		out := make([]providerResponse, 0, len(configs))
		for _, c := range configs {
			out = append(out, providerResponse{ID: c.ID, DisplayName: c.DisplayName, Configured: c.Configured()})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AuthURLHandler returns the provider authorization URL for a user.
func (s *Server) AuthURLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := s.providerParam(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown_provider", providerID)
			return
		}
		q := r.URL.Query()
		req, err := s.flow.BuildAuthorizationURL(r.Context(), providerID, q.Get(ParamUserID), q.Get(ParamReturnURL))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, authURLResponse{URL: req.URL, UserID: req.UserID, Provider: req.ProviderID})
	}
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := s.providerParam(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown_provider", providerID)
			return
		}
		userID := r.PathValue("userID")

		st, err := s.resolver.Status(r.Context(), providerID, userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp := statusResponse{
			Connected:            st.Connected,
			NeedsReauthorization: st.NeedsReauthorization,
			ExpiresAt:            st.ExpiresAt,
		}
		if !st.Connected {
			resp.AuthURL = s.authURLFor(r, providerID, userID)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GetTokenHandler returns a valid access token or a 401 with a reconnect URL.
func (s *Server) GetTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := s.providerParam(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown_provider", providerID)
			return
		}
		userID := r.PathValue("userID")

		rec, err := s.resolver.GetValidRecord(r.Context(), providerID, userID)
		if err != nil {
			if errors.Is(err, errors.ErrNotConnected) || errors.Is(err, errors.ErrRefreshFailed) {
				code := "not_connected"
				if errors.Is(err, errors.ErrRefreshFailed) {
					code = "reauthorization_required"
				}
				writeJSON(w, http.StatusUnauthorized, reauthResponse{Error: code, AuthURL: s.authURLFor(r, providerID, userID)})
				return
			}
			s.writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: rec.AccessToken, ExpiresAt: rec.ExpiresAt})
	}
}

func (s *Server) DisconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := s.providerParam(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown_provider", providerID)
			return
		}
		if err := s.resolver.Disconnect(r.Context(), providerID, r.PathValue("userID")); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrUnknownProvider):
		writeJSONError(w, http.StatusBadRequest, "unknown_provider", "")
	case errors.Is(err, errors.ErrCredentialMissing):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
