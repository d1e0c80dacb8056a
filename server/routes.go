package server

import "net/http"

func (s *Server) initRoutes() error {
	callback, err := s.OAuthCallbackHandler()
	if err != nil {
		return err
	}

	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPIProviders, ChainMiddleware(s.ProvidersHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteAuthURL, ChainMiddleware(s.AuthURLHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCallback, ChainMiddleware(callback, s.HTMLMiddleWare()...))
	// response_mode=form_post
	s.RegisterRouteFunc("POST "+RouteCallback, ChainMiddleware(callback, s.HTMLMiddleWare()...))

	s.RegisterRouteFunc("GET "+RouteAPIStatus, ChainMiddleware(s.StatusHandler(), s.APIMiddleware(s.SharedSecretMiddleware)...))
	s.RegisterRouteFunc("GET "+RouteAPIToken, ChainMiddleware(s.GetTokenHandler(), s.APIMiddleware(s.SharedSecretMiddleware)...))
	s.RegisterRouteFunc("DELETE "+RouteAPIToken, ChainMiddleware(s.DisconnectHandler(), s.APIMiddleware(s.SharedSecretMiddleware)...))

	// Preflight requests never carry the shared secret.
	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))
	return nil
}
