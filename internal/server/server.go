// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package server exposes the read-only ops API: pool and credential
// snapshots, limiter windows, recent audit events, liveness, and prometheus
// metrics. It never mutates coordinator state.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	Version      string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    RateLimitConfig
}

// Server wraps a chi router with the huma ops API.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	limiter  *ipLimiter
}

// New creates a Server with chi router, huma API, health endpoint, CORS, and
// the per-IP request limiter.
func New(cfg Config, svc *Services) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, lexerr.New(lexerr.CodeServerStartFailure, "listen address is required")
	}
	if svc == nil {
		return nil, lexerr.New(lexerr.CodeServerStartFailure, "services are required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	limiter, err := newIPLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(limiter.middleware)

	// Huma API with OpenAPI spec
	humaConfig := huma.DefaultConfig("LexGate", cfg.Version)
	humaConfig.Info.Description = "Multi-key request coordinator ops API"
	api := humachi.New(r, humaConfig)

	r.Handle("/metrics", promhttp.Handler())

	srv := &Server{
		router:   r,
		api:      api,
		cfg:      cfg,
		services: svc,
		limiter:  limiter,
	}

	// Health endpoint
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, srv.handleHealth)

	srv.registerRoutes()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown. The limiter's eviction loop runs for the
// same lifetime.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return lexerr.Wrapf(err, lexerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	go s.limiter.evictLoop(ctx.Done())

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return lexerr.Wrap(err, lexerr.CodeServerShutdownFailure, "shutting down")
	}

	return <-errCh
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status  string  `json:"status" example:"ok" doc:"Health status"`
	Version string  `json:"version" doc:"Build version"`
	Uptime  float64 `json:"uptime_seconds" doc:"Seconds since the gateway started"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*HealthResponse, error) {
	return &HealthResponse{Body: HealthBody{
		Status:  "ok",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.services.started).Seconds(),
	}}, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
