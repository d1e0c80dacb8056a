package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-token-custodian/authflow"
	"github.com/jrsteele09/go-token-custodian/custodian"
	"github.com/jrsteele09/go-token-custodian/internal/config"
	"github.com/jrsteele09/go-token-custodian/providers"
	"github.com/jrsteele09/go-token-custodian/sweeper"
	"github.com/jrsteele09/go-token-custodian/tokens"
)

// TokenResolver is what the API handlers need from the access resolver.
type TokenResolver interface {
	GetValidRecord(ctx context.Context, providerID, userID string) (*tokens.Record, error)
	Status(ctx context.Context, providerID, userID string) (*custodian.Status, error)
	Disconnect(ctx context.Context, providerID, userID string) error
}

// FlowController is what the auth handlers need from the authorization flow.
type FlowController interface {
	BuildAuthorizationURL(ctx context.Context, providerID, userID, returnURL string) (*authflow.AuthorizationRequest, error)
	HandleCallback(ctx context.Context, params authflow.CallbackParams) *authflow.CallbackOutcome
}

// SweepReporter exposes the last sweep for the health endpoint.
type SweepReporter interface {
	LastReport() *sweeper.Report
}

// Services are the components the HTTP boundary fronts.
type Services struct {
	Resolver TokenResolver
	Flow     FlowController
	Registry *providers.Registry
	// Sweeper is optional.
	Sweeper SweepReporter
}

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	resolver TokenResolver
	flow     FlowController
	registry *providers.Registry
	sweeper  SweepReporter
}

func New(config config.Config, services Services) (*Server, error) {
	if services.Resolver == nil || services.Flow == nil || services.Registry == nil {
		return nil, fmt.Errorf("[Server New] resolver, flow and registry are required")
	}
	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		resolver: services.Resolver,
		flow:     services.Flow,
		registry: services.Registry,
		sweeper:  services.Sweeper,
	}
	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to initialise routes: %w", err)
	}
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
