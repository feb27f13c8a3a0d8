package webrtcpeer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/webrtcpeer"
)

// loopbackEndpoint connects a Session to an in-process Relay without a
// WebSocket in between.
type loopbackEndpoint struct {
	relay *signaling.Relay
	inbox chan protocol.Envelope

	mu sync.Mutex
	id string
}

func newLoopbackEndpoint(relay *signaling.Relay) *loopbackEndpoint {
	return &loopbackEndpoint{relay: relay, inbox: make(chan protocol.Envelope, 1024)}
}

func (e *loopbackEndpoint) Deliver(env protocol.Envelope) bool {
	select {
	case e.inbox <- env:
		return true
	default:
		return false
	}
}

func (e *loopbackEndpoint) Send(env protocol.Envelope) error {
	e.mu.Lock()
	id := e.id
	e.mu.Unlock()
	err := e.relay.Route(id, env)
	if errors.Is(err, signaling.ErrTargetNotFound) {
		return nil
	}
	return err
}

func (e *loopbackEndpoint) pump(ctx context.Context, s *client.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-e.inbox:
			s.HandleEnvelope(env)
		}
	}
}

type vnetPeer struct {
	session *client.Session
	ep      *loopbackEndpoint
}

func newVNetPeer(t *testing.T, relay *signaling.Relay, n *vnet.Net) *vnetPeer {
	t.Helper()

	engine, err := webrtcpeer.NewEngine(webrtcpeer.Options{Net: n})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ep := newLoopbackEndpoint(relay)
	s := client.New(client.Config{Engine: engine, Signaler: ep})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	go ep.pump(ctx, s)

	id, err := relay.Register(ep)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ep.mu.Lock()
	ep.id = id
	ep.mu.Unlock()
	t.Cleanup(func() { relay.Unregister(id) })

	return &vnetPeer{session: s, ep: ep}
}

func (p *vnetPeer) snapshot(t *testing.T) client.Snapshot {
	t.Helper()
	snap, err := p.session.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if cond() {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf("timed out waiting for %s", what)
		case <-tick.C:
		}
	}
}

func newVNet(t *testing.T) (*vnet.Net, *vnet.Net) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}
	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}
	return netA, netB
}

func TestCallOverVirtualNetwork(t *testing.T) {
	netA, netB := newVNet(t)

	relay := signaling.NewRelay(nil, nil)
	alice := newVNetPeer(t, relay, netA)
	bob := newVNetPeer(t, relay, netB)

	waitFor(t, 2*time.Second, "identities", func() bool {
		return alice.snapshot(t).SelfID != "" && bob.snapshot(t).SelfID != ""
	})
	bobID := bob.snapshot(t).SelfID

	if err := alice.session.Call(bobID, protocol.CallAudio); err != nil {
		t.Fatalf("Call: %v", err)
	}
	waitFor(t, 2*time.Second, "bob ringing", func() bool {
		return bob.snapshot(t).State == client.StateRinging
	})
	waitFor(t, 2*time.Second, "bob accepts", func() bool {
		err := bob.session.Accept()
		if errors.Is(err, client.ErrOfferPending) {
			return false
		}
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		return true
	})

	waitFor(t, 10*time.Second, "chat channel open on both sides", func() bool {
		a, b := alice.snapshot(t), bob.snapshot(t)
		return a.State == client.StateConnected && b.State == client.StateConnected && a.ChatOpen && b.ChatOpen
	})

	if err := alice.session.SendChat("hello over sctp"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	waitFor(t, 5*time.Second, "bob receives chat", func() bool {
		for _, msg := range bob.snapshot(t).Transcript {
			if msg.Direction == client.Received && strings.Contains(msg.Text, "hello over sctp") {
				return true
			}
		}
		return false
	})

	if _, err := alice.session.ToggleAudio(); err != nil {
		t.Fatalf("ToggleAudio: %v", err)
	}

	if err := alice.session.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	waitFor(t, 5*time.Second, "bob back to idle", func() bool {
		return bob.snapshot(t).State == client.StateIdle
	})
}
