package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tangled.org/atscan.net/perfhint"
)

// Server exposes a perfhint service over HTTP
type Server struct {
	service    *perfhint.Service
	addr       string
	config     *Config
	startTime  time.Time
	httpServer *http.Server
}

// Config configures the server
type Config struct {
	Addr            string
	EnableWebSocket bool
	// StatusInterval is how often /ws pushes a status frame
	StatusInterval  time.Duration
	Version         string
}

// New creates a new HTTP server
func New(service *perfhint.Service, config *Config) *Server {
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = time.Second
	}

	s := &Server{
		service:   service,
		addr:      config.Addr,
		config:    config,
		startTime: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:    config.Addr,
		Handler: s.Handler(),
	}

	return s
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handleStatus())
	mux.HandleFunc("GET /groups", s.handleGroups())

	mux.HandleFunc("GET /sessions", s.handleListSessions())
	mux.HandleFunc("POST /sessions", s.handleCreateSession())
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession())
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession())

	mux.HandleFunc("POST /channels/{tgid}/{uid}", s.handleChannelConfig())
	mux.HandleFunc("DELETE /channels/{tgid}/{uid}", s.handleCloseChannel())

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.service.Gatherer(), promhttp.HandlerOpts{}))

	if s.config.EnableWebSocket {
		mux.HandleFunc("GET /ws", s.handleWebSocket())
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			s.handleRoot()(w, r)
			return
		}
		sendJSON(w, 404, map[string]string{"error": "not found"})
	})

	return corsMiddleware(mux)
}

// GetStartTime returns when the server started
func (s *Server) GetStartTime() time.Time {
	return s.startTime
}
