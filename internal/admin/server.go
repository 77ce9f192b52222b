// Package admin serves the violation snapshot, health, metrics and a live
// websocket stream over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"birdnest/internal/monitor"
	"birdnest/internal/violation"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	subscribeBuffer = 256
)

// Source is the monitor surface the server reads from.
type Source interface {
	Snapshot() map[string]violation.Violation
	Get(serial string) (violation.Violation, bool)
	Status() monitor.Status
	Subscribe(buffer int) (string, <-chan monitor.Update)
	Unsubscribe(id string) bool
}

// WatchdogSource reports stall detection state.
type WatchdogSource interface {
	Status() monitor.WatchdogStatus
}

// Server is the HTTP front end.
type Server struct {
	src               Source
	watchdog          WatchdogSource
	degradedThreshold int64
	log               *slog.Logger

	srv      *http.Server
	group    singleflight.Group
	upgrader websocket.Upgrader

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithWatchdog includes watchdog state in /status and /health.
func WithWatchdog(w WatchdogSource) Option {
	return func(s *Server) { s.watchdog = w }
}

// WithDegradedThreshold marks the service degraded once this many
// consecutive reports came back empty. 0 disables the check.
func WithDegradedThreshold(n int) Option {
	return func(s *Server) { s.degradedThreshold = int64(n) }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a server listening on addr.
func NewServer(addr string, src Source, opts ...Option) *Server {
	s := &Server{
		src:  src,
		log:  slog.Default(),
		done: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /violations", s.handleViolations)
	mux.HandleFunc("GET /violations/{serial}", s.handleViolation)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("admin server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes websocket streams and waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// snapshotJSON coalesces concurrent snapshot requests into one copy and
// encoding.
func (s *Server) snapshotJSON() ([]byte, error) {
	v, err, _ := s.group.Do("snapshot", func() (any, error) {
		return json.Marshal(s.src.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	b, err := s.snapshotJSON()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) handleViolation(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")
	v, ok := s.src.Get(serial)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type statusResponse struct {
	Monitor  monitor.Status          `json:"monitor"`
	Watchdog *monitor.WatchdogStatus `json:"watchdog,omitempty"`
	Health   string                  `json:"health"`
}

func (s *Server) status() statusResponse {
	resp := statusResponse{Monitor: s.src.Status()}
	if s.watchdog != nil {
		ws := s.watchdog.Status()
		resp.Watchdog = &ws
	}
	resp.Health = s.health(resp)
	return resp
}

func (s *Server) health(resp statusResponse) string {
	if resp.Monitor.State != monitor.Running.String() {
		return "stopped"
	}
	if resp.Watchdog != nil && resp.Watchdog.Stalled {
		return "degraded"
	}
	if s.degradedThreshold > 0 && resp.Monitor.EmptyReports >= s.degradedThreshold {
		return "degraded"
	}
	return "healthy"
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.status().Health
	code := http.StatusOK
	if h != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": h})
}

type wsMessage struct {
	Type   string `json:"type"`
	Serial string `json:"serial,omitempty"`
	Data   any    `json:"data"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Subscribe before taking the snapshot so no update falls in between.
	id, updates := s.src.Subscribe(subscribeBuffer)
	defer s.src.Unsubscribe(id)
	log := s.log.With("subscriber", id, "remote", r.RemoteAddr)
	log.Debug("websocket client connected")

	if err := s.send(conn, wsMessage{Type: "snapshot", Data: s.src.Snapshot()}); err != nil {
		log.Debug("websocket snapshot failed", "err", err)
		return
	}

	// Reads only serve to notice the peer going away.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-r.Context().Done():
			return
		case <-gone:
			log.Debug("websocket client disconnected")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			msg := wsMessage{Type: "update", Serial: u.Serial, Data: u.Violation}
			if err := s.send(conn, msg); err != nil {
				log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
