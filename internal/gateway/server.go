// Package gateway is the local HTTP transport: REST endpoints for
// messages, direct actions and introspection, plus a websocket stream
// of audit events.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ilja/jarvis/internal/assistant"
	"github.com/ilja/jarvis/internal/metrics"
	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/ilja/jarvis/pkg/confirm"
	"github.com/ilja/jarvis/pkg/dispatch"
	"github.com/ilja/jarvis/pkg/policy"
	"github.com/rs/zerolog"
)

// Server is the HTTP gateway.
type Server struct {
	host        string
	port        int
	server      *http.Server
	upgrader    websocket.Upgrader
	broadcaster *EventBroadcaster

	assistant  *assistant.Assistant
	registry   *capability.Registry
	audit      *audit.Store
	gate       *confirm.Gate
	dispatcher *dispatch.Dispatcher
	policy     *policy.Policy
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Config holds gateway configuration.
type Config struct {
	Host       string
	Port       int
	Assistant  *assistant.Assistant
	Registry   *capability.Registry
	Audit      *audit.Store
	Gate       *confirm.Gate
	Dispatcher *dispatch.Dispatcher
	Policy     *policy.Policy
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// NewServer creates the gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Assistant == nil || cfg.Registry == nil || cfg.Audit == nil ||
		cfg.Gate == nil || cfg.Dispatcher == nil {
		return nil, fmt.Errorf("assistant, registry, audit, gate and dispatcher are required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	logger := cfg.Logger.With().Str("component", "gateway").Logger()
	s := &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		broadcaster: NewEventBroadcaster(logger),
		assistant:   cfg.Assistant,
		registry:    cfg.Registry,
		audit:       cfg.Audit,
		gate:        cfg.Gate,
		dispatcher:  cfg.Dispatcher,
		policy:      cfg.Policy,
		metrics:     cfg.Metrics,
		logger:      logger,
		upgrader: websocket.Upgrader{
			// The gateway binds to loopback; origin checks add nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	return s, nil
}

// Broadcaster returns the event broadcaster for wiring dispatch events.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /message", s.instrument("message", s.handleMessage))
	mux.HandleFunc("POST /action", s.instrument("action", s.handleAction))
	mux.HandleFunc("POST /action/confirm", s.instrument("action_confirm", s.handleActionConfirm))

	mux.HandleFunc("GET /modules", s.instrument("modules", s.handleModules))
	mux.HandleFunc("GET /modules/{name}", s.instrument("module", s.handleModule))
	mux.HandleFunc("POST /modules/{name}/enable", s.instrument("module_enable", s.handleModuleEnable(true)))
	mux.HandleFunc("POST /modules/{name}/disable", s.instrument("module_disable", s.handleModuleEnable(false)))
	mux.HandleFunc("GET /capabilities", s.instrument("capabilities", s.handleCapabilities))

	mux.HandleFunc("GET /logs", s.instrument("logs", s.handleLogs))
	mux.HandleFunc("POST /notes", s.instrument("notes_add", s.handleAddNote))
	mux.HandleFunc("GET /notes", s.instrument("notes_list", s.handleNotes))

	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// Start begins serving. Non-blocking; errors after bind are logged.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen failed: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Gateway listening")
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// instrument wraps a handler with a request counter.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		if s.metrics != nil {
			s.metrics.GatewayRequestsTotal.
				WithLabelValues(endpoint, fmt.Sprintf("%d", sw.status)).Inc()
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// handleEvents upgrades to a websocket and streams audit events until
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	s.broadcaster.Add(conn)

	// Reads are only needed to notice the close.
	go func() {
		defer s.broadcaster.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
