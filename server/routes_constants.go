package server

// Route path constants
const (
	// Authorization flow
	RouteAuthURL  = "/auth/url"
	RouteCallback = "/callback"

	// Token API (shared secret)
	RouteAPIToken  = "/api/token/{userID}"
	RouteAPIStatus = "/api/status/{userID}"

	// Public
	RouteAPIProviders = "/api/providers"
	RouteHealth       = "/healthz"
)

// Query parameters
const (
	ParamProvider  = "provider"
	ParamUserID    = "user_id"
	ParamReturnURL = "return_url"
)
