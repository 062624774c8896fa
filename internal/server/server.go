// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 100

	// DefaultMaxBodyBytes bounds the request body when unset.
	DefaultMaxBodyBytes = 10 << 20

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Dispatcher opens an upstream stream for one chat turn.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *model.ChatRequest) (stream.Stream, error)
}

// Catalog lists selectable models.
type Catalog interface {
	Models(ctx context.Context) []model.ModelInfo
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes the chat transport endpoint.
type Server struct {
	addr    string
	mux     *http.ServeMux
	server  *http.Server
	handler http.Handler

	dispatcher Dispatcher
	catalog    Catalog
	providers  []model.Provider

	auth     *AuthConfig
	limiter  *RateLimiter
	proxies  *ProxyList
	maxBody  int64
	logger   *zap.Logger
	started  time.Time
	inFlight atomic.Int64
}

// New creates a server from its config section.
func New(cfg config.ServerConfig, dispatcher Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	proxyEntries := cfg.TrustedProxies
	if len(proxyEntries) == 0 {
		proxyEntries = DefaultTrustedProxies
	}
	proxies, invalid := NewProxyList(proxyEntries)
	for _, entry := range invalid {
		logger.Warn("TRUSTED_PROXY_INVALID", zap.String("entry", entry))
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		addr:       cfg.Addr,
		mux:        http.NewServeMux(),
		dispatcher: dispatcher,
		auth: &AuthConfig{
			Password:    cfg.Password,
			ExemptPaths: []string{"/api/models", "/health"},
		},
		proxies: proxies,
		maxBody: maxBody,
		logger:  logger,
		started: time.Now(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.Burst)
	}

	s.setupRoutes()
	s.handler = s.buildHandler()

	// No write timeout: streams are unbounded.
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// WithCatalog sets the model catalog served at /api/models.
func (s *Server) WithCatalog(c Catalog) *Server {
	s.catalog = c
	return s
}

// WithProviders records the configured backends for /health.
func (s *Server) WithProviders(p []model.Provider) *Server {
	s.providers = append([]model.Provider(nil), p...)
	sort.Slice(s.providers, func(i, j int) bool { return s.providers[i] < s.providers[j] })
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) buildHandler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger, s.proxies),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter, s.proxies, s.logger))
	}
	middlewares = append(middlewares, AuthMiddleware(s.auth, s.proxies, s.logger))
	return Chain(middlewares...)(s.mux)
}

// ============================================================================
// MODELS AND HEALTH
// ============================================================================

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := model.DefaultModels()
	if s.catalog != nil {
		models = s.catalog.Models(r.Context())
	}
	writeJSON(w, http.StatusOK, models)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	Providers     []model.Provider `json:"providers,omitempty"`
	ActiveStreams int64            `json:"activeStreams"`
	UptimeSeconds int64            `json:"uptimeSeconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		Providers:     s.providers,
		ActiveStreams: s.inFlight.Load(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("SERVER_START",
		zap.String("addr", s.addr),
		zap.String("version", Version),
		zap.Bool("auth", s.auth.Enabled()),
		zap.Bool("rate_limit", s.limiter != nil))

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("SERVER_SHUTDOWN", zap.Int64("active_streams", s.inFlight.Load()))
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}, the same shape as a mid-stream
// error frame.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
