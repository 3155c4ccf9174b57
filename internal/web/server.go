// Package web serves the viewer to browsers.
//
// Every page load opens a websocket; the server runs a viewer controller
// for it and streams rendered regions back. The page script only swaps
// markup and forwards clicks and key presses.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/metrics"
	"github.com/Sternrassler/postview/pkg/viewer"
)

//go:embed static
var staticFiles embed.FS

// Config holds server settings.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ReadyTimeout bounds the Redis ping of /ready
	ReadyTimeout time.Duration
}

// DefaultConfig returns production timeouts.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ReadyTimeout: 2 * time.Second,
	}
}

// Server is the viewer HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     Config
	redis      *redis.Client
	hub        *Hub
	logger     zerolog.Logger
}

// NewServer wires routes for fetcher. rdb may be nil.
func NewServer(cfg Config, fetcher client.Fetcher, viewerCfg viewer.Config, rdb *redis.Client, logger zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		redis:  rdb,
		hub:    NewHub(fetcher, viewerCfg, logger),
		logger: logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.Handle("/ws", s.hub).Methods(http.MethodGet)

	static, _ := fs.Sub(staticFiles, "static")
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods(http.MethodGet)
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = logRequests(s.logger)(h)
	h = recoverPanics(s.logger)(h)
	return otelhttp.NewHandler(h, "postview",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/health"
		}),
	)
}

// Hub exposes the session hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes all sessions, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ready", "redis": "disabled"}
	code := http.StatusOK

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.ReadyTimeout)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis not reachable")
			status["status"] = "not ready"
			status["redis"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status["redis"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
