package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ServerConfig configures the devtools HTTP server.
type ServerConfig struct {
	// Address to listen on (default "localhost:7070").
	Address string

	// Hub serves /events and /api/events. Required.
	Hub *Hub

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	Logger *slog.Logger
}

// DefaultServerConfig returns a config with sensible timeouts.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:           "localhost:7070",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Server exposes a Hub and Prometheus metrics over HTTP.
type Server struct {
	config     ServerConfig
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a devtools server. It does not listen until Run.
func NewServer(config ServerConfig) *Server {
	def := DefaultServerConfig()
	if config.Address == "" {
		config.Address = def.Address
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Hub == nil {
		config.Hub = NewHub(0, config.Logger)
	}

	s := &Server{
		config: config,
		logger: config.Logger.With("component", "devtools"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/events", s.config.Hub.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleRecent)
		r.Get("/clients", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]int{"clients": s.config.Hub.ClientCount()})
		})
	})
	return r
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	events := s.config.Hub.Recent()
	if mode := r.URL.Query().Get("fallback"); mode == "1" || mode == "true" {
		kept := events[:0]
		for _, e := range events {
			if e.Fallback() {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.config.Hub
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("devtools listening", "address", s.config.Address)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown closes client connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.config.Hub.Close()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("devtools shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("devtools stopped")
	return nil
}
