// Package server implements the HTTP API server for xiaoban.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/xiaoban/internal/ratelimit"
	"github.com/ashita-ai/xiaoban/internal/service/status"
)

// Server is the xiaoban HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Engine, Pusher, Limiter, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store     Store
	StatusSvc *status.Service
	Logger    *slog.Logger

	// Optional dependencies (nil = disabled).
	Engine    Proactive
	Pusher    Pusher
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// Push settings.
	VAPIDPublicKey string
	PushTitle      string

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	APIKey              string

	// Optional embedded assets.
	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		StatusSvc:           cfg.StatusSvc,
		Engine:              cfg.Engine,
		Pusher:              cfg.Pusher,
		VAPIDPublicKey:      cfg.VAPIDPublicKey,
		PushTitle:           cfg.PushTitle,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	mux := http.NewServeMux()

	// Status timeline.
	mux.HandleFunc("POST /v1/status", h.HandleRecordStatus)
	mux.HandleFunc("POST /v1/status/command", h.HandleStatusCommand)
	mux.HandleFunc("GET /v1/status/today", h.HandleStatusToday)
	mux.HandleFunc("GET /v1/status/recent", h.HandleStatusRecent)
	mux.HandleFunc("POST /v1/activity", h.HandleTouchActivity)

	// Web Push subscriptions.
	mux.HandleFunc("POST /v1/push/subscribe", h.HandlePushSubscribe)
	mux.HandleFunc("POST /v1/push/unsubscribe", h.HandlePushUnsubscribe)
	mux.HandleFunc("GET /v1/push/vapid-key", h.HandleVAPIDKey)
	mux.HandleFunc("POST /v1/push/test", h.HandlePushTest)

	// Proactive engine.
	mux.HandleFunc("POST /v1/proactive/fire", h.HandleProactiveFire)
	mux.HandleFunc("GET /v1/proactive/pending", h.HandleProactivePending)
	mux.HandleFunc("GET /v1/proactive/rules", h.HandleProactiveRules)
	mux.HandleFunc("GET /v1/proactive/stats", h.HandleProactiveStats)

	// MCP StreamableHTTP transport (same API key as /v1).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	rl := ratelimit.Middleware(cfg.Limiter, rateLimitKey, func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}, time.Second, cfg.Logger)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → rate limit → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = apiKeyMiddleware(cfg.APIKey, handler)
	handler = rl(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// rateLimitKey keys by client IP. Health checks are exempt so probes never
// trip the limiter.
func rateLimitKey(r *http.Request) string {
	if r.URL.Path == "/health" {
		return ""
	}
	return ratelimit.IPKeyFunc(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
