package signaling

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

const wsWriteWait = 1 * time.Second

// wsConn is one client's WebSocket. The read loop runs on the HTTP handler
// goroutine; a writer goroutine drains the outbound queue so routing into this
// connection never blocks the sender's handler.
type wsConn struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	out     *sendQueue
	limiter *rate.Limiter

	// id is written once Register returns; Deliver may run on other
	// connections' goroutines before that.
	id atomic.Value

	// closeCode/closeReason are sent by the writer once the queue drains.
	closeMu     sync.Mutex
	closeCode   int
	closeReason string

	writerDone chan struct{}
	pingDone   chan struct{}
	closeOnce  sync.Once
}

func newWSConn(srv *Server, conn *websocket.Conn) *wsConn {
	var limiter *rate.Limiter
	if perSec := srv.cfg.MaxMessagesPerSecond; perSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	return &wsConn{
		srv:        srv,
		conn:       conn,
		log:        srv.log,
		out:        newSendQueue(srv.cfg.SendQueueBytes),
		limiter:    limiter,
		writerDone: make(chan struct{}),
		pingDone:   make(chan struct{}),
	}
}

// Deliver implements Endpoint.
func (c *wsConn) Deliver(env protocol.Envelope) bool {
	data, err := protocol.Encode(env)
	if err != nil {
		c.log.Error("envelope_encode_failed", "client_id", c.clientID(), "type", env.Type, "err", err)
		return false
	}
	switch c.out.Enqueue(data) {
	case enqueued:
		return true
	case queueFull:
		// The reader notices the closed socket and unregisters; doing it here
		// would re-enter the relay lock.
		c.srv.metrics.Inc(metrics.EventSlowConsumer)
		c.srv.metrics.Dropped(metrics.DropReasonQueueOverflow)
		c.log.Warn("slow_consumer_closed", "client_id", c.clientID(), "queued", c.out.Len())
		c.abort()
		return false
	default:
		return false
	}
}

func (c *wsConn) run() {
	cfg := c.srv.cfg

	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})

	go c.writeLoop()
	go c.pingLoop()

	id, err := c.srv.relay.Register(c)
	if err != nil {
		c.log.Error("client_register_failed", "err", err)
		c.finish(websocket.CloseTryAgainLater, "try again later")
		return
	}
	c.id.Store(id)
	log := c.log.With("client_id", id)
	log.Debug("signaling_connected", "remote_addr", c.conn.RemoteAddr().String())

	code, reason := c.readLoop(id, log)
	c.srv.relay.Unregister(id)
	c.finish(code, reason)
}

func (c *wsConn) clientID() string {
	id, _ := c.id.Load().(string)
	return id
}

// readLoop returns the close code to send, or 0 when the peer went away.
func (c *wsConn) readLoop(id string, log *slog.Logger) (int, string) {
	for {
		// Binary frames carry the same JSON as text frames.
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.srv.metrics.Dropped(metrics.DropReasonTooLarge)
				c.sendError(protocol.ReasonBadMessage, "message too large")
				return websocket.CloseMessageTooBig, "message too large"
			case isTimeout(err):
				c.srv.metrics.Inc(metrics.EventIdleTimeout)
				log.Info("signaling_idle_timeout")
				return websocket.CloseNormalClosure, "idle timeout"
			default:
				log.Debug("signaling_disconnected", "err", err)
				return 0, ""
			}
		}
		// Apply the rate limit after reading so bytes already buffered are
		// consumed and the client reliably observes the close frame.
		if c.limiter != nil && !c.limiter.Allow() {
			c.srv.metrics.Dropped(metrics.DropReasonRateLimited)
			log.Warn("signaling_rate_limited")
			c.sendError(protocol.ReasonRateLimited, "rate limit exceeded")
			return websocket.ClosePolicyViolation, "rate limit exceeded"
		}
		env, err := protocol.Parse(data)
		if err != nil {
			c.srv.metrics.Dropped(metrics.DropReasonMalformed)
			log.Warn("envelope_dropped", "err", err)
			continue
		}
		_ = c.srv.relay.Route(id, env)
	}
}

func (c *wsConn) sendError(reason, message string) {
	c.Deliver(protocol.Envelope{Type: protocol.KindError, Reason: reason, Message: message})
}

func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	for {
		frame, ok := c.out.Dequeue()
		if !ok {
			break
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.out.Close()
			c.abort()
			return
		}
	}

	c.closeMu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.closeMu.Unlock()
	if code != 0 {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	}
}

func (c *wsConn) pingLoop() {
	interval := c.srv.cfg.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.pingDone:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// finish flushes queued envelopes, sends the close frame (if any) and closes
// the socket.
func (c *wsConn) finish(code int, reason string) {
	c.closeMu.Lock()
	c.closeCode, c.closeReason = code, reason
	c.closeMu.Unlock()

	c.out.Seal()
	select {
	case <-c.writerDone:
	case <-time.After(c.srv.cfg.IdleTimeout):
		c.out.Close()
	}
	c.abort()
}

// abort closes the socket immediately. Safe from any goroutine.
func (c *wsConn) abort() {
	c.closeOnce.Do(func() {
		close(c.pingDone)
		c.out.Close()
		_ = c.conn.Close()
		c.srv.untrack(c)
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
