package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/metric"
)

// Event is one lifecycle notification pushed to websocket subscribers.
type Event struct {
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
	Graph  string    `json:"graph,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Event types published by the app.
const (
	EventAppStarted    = "app_started"
	EventAppStopping   = "app_stopping"
	EventEngineStarted = "engine_started"
	EventEngineStopped = "engine_stopped"
	EventEngineFailed  = "engine_failed"
)

// subscriber buffers events for one websocket client. Slow clients are
// dropped rather than allowed to block publishers.
type subscriber struct {
	events chan Event
}

// Server is the diagnostics endpoint: Prometheus metrics, a health probe,
// and a websocket feed of lifecycle events.
type Server struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	running     bool
}

// NewServer creates a diagnostics server bound to addr on Start.
func NewServer(addr string, registry *metric.MetricsRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:      logger.With("component", "gateway"),
		registry:    registry,
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebsocket)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background. The bound address is
// available through Addr, so tests can start on port 0.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Gateway", "Start", "server already running")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Start",
			fmt.Sprintf("listen on %s", s.httpServer.Addr))
	}
	s.listener = ln
	s.startTime = time.Now()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway serve failed", "error", err)
		}
	}()

	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Publish pushes an event to every connected subscriber. Subscribers whose
// buffers are full miss the event; the feed is diagnostics, not a durable
// stream.
func (s *Server) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub.events <- evt:
		default:
		}
	}
}

// Shutdown closes subscriber connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for sub := range s.subscribers {
		close(sub.events)
	}
	s.subscribers = make(map[*subscriber]struct{})
	s.mu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	uptime := time.Since(s.startTime)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": uptime.String(),
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sub := &subscriber{events: make(chan Event, 64)}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(conn, sub)
}

// writeLoop forwards events to one client until its channel closes or a
// write fails.
func (s *Server) writeLoop(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for evt := range sub.events {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
}
