package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/origin"
)

// Banner is served to plain HTTP requests on the signaling path.
const Banner = "WebSocket Server for WebRTC Signaling"

const (
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second
	defaultMaxMessageBytes      = 64 * 1024
	defaultMaxMessagesPerSecond = 50
	defaultSendQueueBytes       = 1 << 20
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Relay is created by NewServer when nil.
	Relay *Relay

	// Origins gates the WebSocket upgrade. The zero value admits every origin.
	Origins origin.Policy

	// NonUpgrade serves requests on the signaling path that do not ask for a
	// WebSocket upgrade. A plain-text Banner is served when nil.
	NonUpgrade http.Handler

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueBytes       int
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.IdleTimeout {
		c.PingInterval = min(defaultPingInterval, c.IdleTimeout/2)
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = defaultMaxMessagesPerSecond
	}
	if c.SendQueueBytes <= 0 {
		c.SendQueueBytes = defaultSendQueueBytes
	}
	return c
}

// Server exposes a Relay over WebSocket.
//
// Endpoints:
//   - GET /        : WebSocket upgrade; plain requests get the banner
//   - GET /signal  : WebSocket upgrade
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	relay    *Relay
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	relay := cfg.Relay
	if relay == nil {
		relay = NewRelay(cfg.Logger, cfg.Metrics)
	}
	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		relay:   relay,
		conns:   make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) Relay() *Relay { return s.relay }

// Ready reports ErrServerClosed once Close has been called.
func (s *Server) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	return nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /signal", s.handleUpgrade)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleUpgrade(w, r)
		return
	}
	if s.cfg.NonUpgrade != nil {
		s.cfg.NonUpgrade.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Banner))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if !s.cfg.Origins.CheckRequest(r) {
		s.metrics.Inc(metrics.EventOriginRejected)
		s.log.Warn("signaling_origin_rejected", "origin", r.Header.Get("Origin"), "host", r.Host)
		return false
	}
	return true
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Upgrade writes the HTTP error response itself.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.Inc(metrics.EventUpgradeRejected)
		return
	}

	c := newWSConn(s, conn)
	if !s.track(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	c.run()
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Close drops every live connection. http.Server.Shutdown does not touch
// hijacked connections, so the relay process calls this during shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		c.abort()
	}
}
