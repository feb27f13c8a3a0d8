// Package signalclient is the call client's WebSocket connection to the
// signaling relay.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

const (
	dialTimeout = 10 * time.Second
	writeWait   = 5 * time.Second

	DefaultMaxMessageBytes = int64(1 << 20)
)

var ErrClosed = errors.New("signaling connection closed")

// Handler receives what the relay sends. Both methods are called from the
// goroutine running Client.Run.
type Handler interface {
	HandleEnvelope(env protocol.Envelope)
	// SignalingLost is called once when the connection ends for any reason
	// other than a local Close.
	SignalingLost(err error)
}

type Config struct {
	URL string
	// Origin is sent as the handshake Origin header when set.
	Origin          string
	Logger          *slog.Logger
	MaxMessageBytes int64
}

type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	conn.SetReadLimit(cfg.MaxMessageBytes)

	cfg.Logger.Info("signaling_connected", "url", cfg.URL)
	return &Client{
		conn:   conn,
		log:    cfg.Logger,
		closed: make(chan struct{}),
	}, nil
}

// Send writes env as one text frame. It is safe for concurrent use.
func (c *Client) Send(env protocol.Envelope) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// Run reads until the connection ends. Envelopes that do not decode are
// logged and skipped. The relay's pings are answered by gorilla's default
// ping handler.
func (c *Client) Run(h Handler) error {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			c.log.Warn("signaling_disconnected", "err", err)
			c.shutdown()
			h.SignalingLost(err)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msgType != websocket.TextMessage {
			c.log.Debug("signaling_frame_ignored", "message_type", msgType)
			continue
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug("envelope_dropped", "err", err)
			continue
		}
		h.HandleEnvelope(env)
	}
}

// Close sends a normal close frame and releases the connection. Run returns
// nil afterwards without calling SignalingLost.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.shutdown()
}

func (c *Client) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
