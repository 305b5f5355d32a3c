// Package status serves the accessory's HTTP status surface: Prometheus
// metrics, a health probe and the credential roster. The roster carries
// metadata only; secrets never leave the credential store.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarlink/solarlink-go/pkg/credential"
)

// DefaultAddress is the default listen address of the status server.
const DefaultAddress = ":9368"

// Roster is the read-only view of the credential store served here.
// *credential.Store implements it.
type Roster interface {
	IsConfigured() bool
	Items() []credential.Item
}

// Config configures the status server.
type Config struct {
	// Address to listen on (default ":9368").
	Address string

	// Roster is required.
	Roster Roster

	// Connections reports the open link connections (optional).
	Connections func() int

	// Metrics serves /metrics. Defaults to promhttp.Handler().
	Metrics http.Handler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Metrics == nil {
		c.Metrics = promhttp.Handler()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Health is the /healthz response body.
type Health struct {
	Status      string `json:"status"`
	Configured  bool   `json:"configured"`
	Connections int    `json:"connections"`
}

// NewRouter returns the status routes.
func NewRouter(config Config) chi.Router {
	config.applyDefaults()

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)

	r.Handle("/metrics", config.Metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h := Health{Status: "ok", Configured: config.Roster.IsConfigured()}
		if config.Connections != nil {
			h.Connections = config.Connections()
		}
		writeJSON(w, config.Logger, h)
	})
	r.Get("/credentials", func(w http.ResponseWriter, _ *http.Request) {
		items := config.Roster.Items()
		if items == nil {
			items = []credential.Item{}
		}
		writeJSON(w, config.Logger, items)
	})
	return r
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("status response failed", "error", err)
	}
}

// Server runs the status routes over HTTP.
type Server struct {
	config Config
	http   *http.Server
	ln     net.Listener
	done   chan struct{}
}

// NewServer creates a status server.
func NewServer(config Config) *Server {
	config.applyDefaults()
	return &Server{
		config: config,
		http: &http.Server{
			Handler:           NewRouter(config),
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan struct{}),
	}
}

// Start listens and serves in the background until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		defer close(s.done)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Error("status server stopped", "error", err)
		}
	}()
	s.config.Logger.Info("status server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the listen address once started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	err := s.http.Shutdown(ctx)
	<-s.done
	return err
}
