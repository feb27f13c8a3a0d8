package signaling

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

var (
	// ErrIDSpaceExhausted is returned by Register when the id generator keeps
	// producing identities that are already live.
	ErrIDSpaceExhausted = errors.New("could not allocate a unique client id")
	ErrTargetNotFound   = errors.New("target not found")
	ErrUnknownSender    = errors.New("sender not registered")
	ErrServerClosed     = errors.New("signaling server closed")
)

const maxIDAttempts = 8

const (
	msgUserNotFound = "User not found or offline"
	msgChatNotFound = "Chat recipient not found or offline"
)

// Endpoint is the relay's handle on one registered connection.
type Endpoint interface {
	// Deliver queues env for the connection without blocking. It returns false
	// when the connection is closing or cannot keep up. Implementations must not
	// call back into the Relay.
	Deliver(env protocol.Envelope) bool
}

// Relay owns the identity map. Every mutation of the map and the presence
// broadcast it triggers happen under one lock, so no client can observe a
// half-updated presence set.
type Relay struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
	now     func() time.Time

	mu        sync.Mutex
	endpoints map[string]Endpoint
}

type RelayOption func(*Relay)

// WithIDGenerator replaces the default uuid generator.
func WithIDGenerator(gen func() string) RelayOption {
	return func(r *Relay) { r.newID = gen }
}

func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

func NewRelay(log *slog.Logger, m *metrics.Metrics, opts ...RelayOption) *Relay {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Relay{
		log:       log,
		metrics:   m,
		newID:     uuid.NewString,
		now:       time.Now,
		endpoints: make(map[string]Endpoint),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register assigns ep a fresh identity, sends it assign-id and pushes the new
// presence set to every live endpoint.
func (r *Relay) Register(ep Endpoint) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return "", ErrIDSpaceExhausted
		}
		id = r.newID()
		if _, taken := r.endpoints[id]; id != "" && !taken {
			break
		}
		r.metrics.Inc(metrics.EventIDCollision)
	}

	r.endpoints[id] = ep
	r.metrics.ConnectionOpened()
	ep.Deliver(protocol.Envelope{Type: protocol.KindAssignID, ID: id})
	r.broadcastLocked()

	r.log.Info("client_registered", "client_id", id, "online", len(r.endpoints))
	return id, nil
}

// Unregister removes id and pushes the shrunken presence set. Unknown ids are
// ignored so callers can unregister unconditionally on teardown.
func (r *Relay) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[id]; !ok {
		return
	}
	delete(r.endpoints, id)
	r.metrics.ConnectionClosed()
	r.broadcastLocked()

	r.log.Info("client_unregistered", "client_id", id, "online", len(r.endpoints))
}

// Snapshot returns the live identities in sorted order.
func (r *Relay) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked()
}

func (r *Relay) idsLocked() []string {
	ids := lo.Keys(r.endpoints)
	slices.Sort(ids)
	return ids
}

func (r *Relay) broadcastLocked() {
	ids := r.idsLocked()
	for _, id := range ids {
		r.endpoints[id].Deliver(protocol.Envelope{
			Type:  protocol.KindUserList,
			Users: lo.Without(ids, id),
		})
	}
	r.metrics.PresenceBroadcast()
}

// Route forwards env from senderID to env.TargetID. env must already have
// passed protocol.Parse.
//
// When the target is not registered the sender alone receives an error
// envelope and ErrTargetNotFound is returned. Delivery to a target that is
// closing fails silently.
func (r *Relay) Route(senderID string, env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.endpoints[senderID]
	if !ok {
		return ErrUnknownSender
	}

	target, ok := r.endpoints[env.TargetID]
	if !ok {
		msg := msgUserNotFound
		if env.Type == protocol.KindChatMessage {
			msg = msgChatNotFound
		}
		sender.Deliver(protocol.Envelope{
			Type:     protocol.KindError,
			Reason:   protocol.ReasonTargetNotFound,
			Message:  msg,
			TargetID: env.TargetID,
		})
		r.metrics.Dropped(metrics.DropReasonTargetNotFound)
		r.log.Info("target_not_found", "client_id", senderID, "type", env.Type, "target_id", env.TargetID)
		return ErrTargetNotFound
	}

	out := r.retag(senderID, env)
	if !target.Deliver(out) {
		r.metrics.Dropped(metrics.DropReasonPeerClosed)
		r.log.Debug("envelope_undeliverable", "client_id", senderID, "type", env.Type, "target_id", env.TargetID)
		return nil
	}
	r.metrics.Routed(string(env.Type))
	r.log.Debug("envelope_routed", "client_id", senderID, "type", env.Type, "target_id", env.TargetID)

	if env.Type == protocol.KindChatMessage {
		sender.Deliver(protocol.Envelope{
			Type:      protocol.KindMessageDelivered,
			TargetID:  env.TargetID,
			Timestamp: out.Timestamp,
		})
		r.metrics.Inc(metrics.EventDeliveryAck)
	}
	return nil
}

// retag builds the envelope the target receives. It is constructed from
// scratch so only the fields meaningful for the kind survive, and the
// originating identity always comes from the relay.
func (r *Relay) retag(from string, in protocol.Envelope) protocol.Envelope {
	switch in.Type {
	case protocol.KindCallRequest:
		kind := in.CallKind
		if kind == "" {
			kind = protocol.CallAudio
		}
		// callType is still read by older browser clients.
		return protocol.Envelope{Type: protocol.KindIncomingCall, CallerID: from, CallKind: kind, LegacyCallKind: kind}
	case protocol.KindOfferSDP:
		return protocol.Envelope{Type: protocol.KindOfferSDP, CallerID: from, SDP: in.SDP}
	case protocol.KindAnswerSDP:
		return protocol.Envelope{Type: protocol.KindAnswerSDP, CalleeID: from, SDP: in.SDP}
	case protocol.KindCallAccepted, protocol.KindCallRejected:
		return protocol.Envelope{Type: in.Type, CalleeID: from}
	case protocol.KindICECandidate:
		return protocol.Envelope{Type: protocol.KindICECandidate, SenderID: from, Candidate: in.Candidate}
	case protocol.KindCallEnd:
		return protocol.Envelope{Type: protocol.KindCallEnded, SenderID: from}
	case protocol.KindChatMessage:
		ts := in.Timestamp
		if ts == 0 {
			ts = r.now().UnixMilli()
		}
		return protocol.Envelope{Type: protocol.KindChatMessage, SenderID: from, Text: in.Text, Timestamp: ts}
	default:
		// Parse only admits directed kinds.
		return protocol.Envelope{Type: in.Type, SenderID: from}
	}
}
