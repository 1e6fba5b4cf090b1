// Package api serves the console HTTP API: the application configuration
// record, LiveKit connection details, FAQ lookups, lead capture, and the
// fraud-case reporting endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/internal/config"
	"github.com/voicedesk/agent-console/internal/faq"
	"github.com/voicedesk/agent-console/internal/fraudcases"
	"github.com/voicedesk/agent-console/internal/leads"
	"github.com/voicedesk/agent-console/pkg/appconfig"
)

const (
	readHeaderTimeout  = 5 * time.Second
	sandboxHTTPTimeout = 10 * time.Second
)

// RoomCreator creates LiveKit rooms. Satisfied by lksdk.RoomServiceClient;
// tests substitute a fake.
type RoomCreator interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
}

// Options carries the dependencies of the console API server.
type Options struct {
	Config     config.Config
	Provider   *appconfig.Provider
	FAQ        *faq.Store
	Leads      *leads.Store
	FraudCases *fraudcases.Store
	Logger     *zap.Logger

	// RoomClient overrides the LiveKit room service client, primarily
	// for tests. When nil and LiveKit credentials are configured, a real
	// client is constructed.
	RoomClient RoomCreator

	// SandboxClient overrides the HTTP client used to reach the hosted
	// sandbox token service.
	SandboxClient *http.Client
}

// Server is the console HTTP API server.
type Server struct {
	cfg      config.Config
	provider *appconfig.Provider
	faq      *faq.Store
	leads    *leads.Store
	fraud    *fraudcases.Store
	logger   *zap.Logger
	rooms    RoomCreator
	sandbox  *http.Client

	httpServer *http.Server
}

// New constructs the server and its router.
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		provider: opts.Provider,
		faq:      opts.FAQ,
		leads:    opts.Leads,
		fraud:    opts.FraudCases,
		logger:   opts.Logger,
		rooms:    opts.RoomClient,
		sandbox:  opts.SandboxClient,
	}

	if s.rooms == nil && opts.Config.LiveKitAPIKey != "" && opts.Config.LiveKitAPISecret != "" {
		s.rooms = lksdk.NewRoomServiceClient(
			httpFromWS(opts.Config.LiveKitURL),
			opts.Config.LiveKitAPIKey,
			opts.Config.LiveKitAPISecret,
		)
	}
	if s.sandbox == nil {
		s.sandbox = &http.Client{Timeout: sandboxHTTPTimeout}
	}

	s.httpServer = &http.Server{
		Addr:              opts.Config.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger))
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.Limit(
			s.cfg.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down")
			}),
		))
	}
	r.Use(metricsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/app-config", s.handleAppConfig)
		r.Post("/connection-details", s.handleConnectionDetails)
		r.Post("/faq/lookup", s.handleFAQLookup)
		r.Post("/leads", s.handleLeadCreate)
		r.Get("/leads", s.handleLeadList)
		r.Get("/fraud-cases", s.handleFraudCases)
		r.Get("/fraud-cases/summary", s.handleFraudSummary)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("console API listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// httpFromWS converts a LiveKit websocket URL to the HTTP endpoint the room
// service client expects.
func httpFromWS(url string) string {
	switch {
	case len(url) >= 6 && url[:6] == "wss://":
		return "https://" + url[6:]
	case len(url) >= 5 && url[:5] == "ws://":
		return "http://" + url[5:]
	default:
		return url
	}
}
