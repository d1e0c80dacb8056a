package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-token-custodian/authflow"
	"github.com/jrsteele09/go-token-custodian/internal/errors"
)

type callbackPageData struct {
	AppName      string
	ProviderName string
	Success      bool
	ReturnURL    string
	Message      string
}

// OAuthCallbackHandler completes the provider round trip and renders the outcome page.
func (s *Server) OAuthCallbackHandler() (http.HandlerFunc, error) {
	tmpl, err := ParseTemplate("callback.html")
	if err != nil {
		return nil, err
	}

	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue covers both query and form_post responses
		out := s.flow.HandleCallback(r.Context(), authflow.CallbackParams{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		})

		data := callbackPageData{
			AppName:      s.config.GetAppName(),
			ProviderName: out.ProviderID,
			Success:      out.Success,
		}
		if cfg, err := s.registry.Get(out.ProviderID); err == nil {
			data.ProviderName = cfg.DisplayName
		}

		status := http.StatusOK
		if out.Success {
			data.ReturnURL = out.ReturnURL
		} else {
			status, data.Message = callbackFailure(out.Err)
			zerolog.Ctx(r.Context()).Warn().Err(out.Err).
				Str("provider", out.ProviderID).
				Str("user_id", out.UserID).
				Msg("callback failed")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = tmpl.Execute(w, data)
	}, nil
}

func callbackFailure(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrAuthorizationDenied):
		return http.StatusBadRequest, "Authorization was cancelled or denied at the provider."
	case errors.Is(err, errors.ErrMissingCode):
		return http.StatusBadRequest, "The provider did not return an authorization code."
	case errors.Is(err, errors.ErrProviderExchange):
		return http.StatusBadGateway, "The provider rejected the authorization. Please start again."
	case errors.Is(err, errors.ErrUnknownProvider):
		return http.StatusBadRequest, "This provider is not configured."
	default:
		return http.StatusInternalServerError, "Something went wrong while saving your connection. Please try again."
	}
}
