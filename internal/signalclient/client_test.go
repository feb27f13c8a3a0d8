package signalclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/signaling"
)

type recordingHandler struct {
	envs chan protocol.Envelope

	mu   sync.Mutex
	lost []error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{envs: make(chan protocol.Envelope, 64)}
}

func (h *recordingHandler) HandleEnvelope(env protocol.Envelope) { h.envs <- env }

func (h *recordingHandler) SignalingLost(err error) {
	h.mu.Lock()
	h.lost = append(h.lost, err)
	h.mu.Unlock()
}

func (h *recordingHandler) lostCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lost)
}

func (h *recordingHandler) next(t *testing.T, kind protocol.Kind) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-h.envs:
			if env.Type == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func startRelay(t *testing.T, cfg signaling.Config) (*signaling.Server, string) {
	t.Helper()
	srv := signaling.NewServer(cfg)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
}

func connect(t *testing.T, url string) (*Client, *recordingHandler, <-chan error) {
	t.Helper()
	c, err := Dial(context.Background(), Config{URL: url})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	h := newRecordingHandler()
	done := make(chan error, 1)
	go func() { done <- c.Run(h) }()
	return c, h, done
}

func TestClient_ChatThroughRelay(t *testing.T) {
	_, url := startRelay(t, signaling.Config{})

	_, ha, _ := connect(t, url)
	idA := ha.next(t, protocol.KindAssignID).ID
	b, hb, _ := connect(t, url)
	idB := hb.next(t, protocol.KindAssignID).ID

	if err := b.Send(protocol.Envelope{Type: protocol.KindChatMessage, TargetID: idA, Text: "hi", Timestamp: 5}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := ha.next(t, protocol.KindChatMessage)
	if got.SenderID != idB || got.Text != "hi" || got.Timestamp != 5 {
		t.Fatalf("chat=%#v", got)
	}
	ack := hb.next(t, protocol.KindMessageDelivered)
	if ack.TargetID != idA {
		t.Fatalf("ack=%#v", ack)
	}
}

func TestClient_CloseIsQuiet(t *testing.T) {
	_, url := startRelay(t, signaling.Config{})
	c, h, done := connect(t, url)
	h.next(t, protocol.KindAssignID)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run=%v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if h.lostCount() != 0 {
		t.Fatalf("SignalingLost called after a local close")
	}
	if err := c.Send(protocol.Envelope{Type: protocol.KindCallEnd, TargetID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close err=%v, want ErrClosed", err)
	}
}

func TestClient_ServerShutdownReportsLoss(t *testing.T) {
	srv, url := startRelay(t, signaling.Config{})
	_, h, done := connect(t, url)
	h.next(t, protocol.KindAssignID)

	srv.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if h.lostCount() != 1 {
		t.Fatalf("lost=%d, want 1", h.lostCount())
	}
}

func TestDial_SendsOrigin(t *testing.T) {
	_, url := startRelay(t, signaling.Config{Origins: origin.NewPolicy([]string{"https://app.example"})})

	if _, err := Dial(context.Background(), Config{URL: url}); err == nil {
		t.Fatalf("expected dial without an allowed origin to fail")
	}

	c, err := Dial(context.Background(), Config{URL: url, Origin: "https://app.example"})
	if err != nil {
		t.Fatalf("Dial with origin: %v", err)
	}
	_ = c.Close()
}
