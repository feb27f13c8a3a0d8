package client

import (
	"context"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// ConnState mirrors the ICE connection state reported by the media engine.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnChecking
	ConnConnected
	ConnCompleted
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnNew:
		return "new"
	case ConnChecking:
		return "checking"
	case ConnConnected:
		return "connected"
	case ConnCompleted:
		return "completed"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// established reports whether the transport reached connectivity.
func (s ConnState) established() bool { return s == ConnConnected || s == ConnCompleted }

// lost reports whether the transport is gone for good as far as the call is
// concerned.
func (s ConnState) lost() bool {
	return s == ConnDisconnected || s == ConnFailed || s == ConnClosed
}

// MediaEngine is everything the session needs from the real-time media stack.
type MediaEngine interface {
	// AcquireMedia opens the local capture devices for kind. Audio is always
	// included; video only for CallVideo.
	AcquireMedia(ctx context.Context, kind protocol.CallKind) (LocalMedia, error)
	// NewPeer creates a negotiation object whose callbacks are delivered to
	// events.
	NewPeer(events PeerEvents) (Peer, error)
}

type LocalMedia interface {
	Kinds() []TrackKind
	// SetTrackEnabled pauses or resumes sending the given track.
	SetTrackEnabled(kind TrackKind, enabled bool) error
	Stop()
}

// Peer is one peer-connection-like negotiation object.
type Peer interface {
	AddLocalMedia(media LocalMedia) error
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (protocol.SDP, error)
	// CreateAnswer applies offer as the remote description, then creates and
	// applies the local answer.
	CreateAnswer(offer protocol.SDP) (protocol.SDP, error)
	SetRemoteAnswer(answer protocol.SDP) error
	AddICECandidate(c protocol.Candidate) error
	CreateDataChannel(label string, opts DataChannelOptions) (DataChannel, error)
	Close() error
}

type DataChannelOptions struct {
	Ordered        bool
	MaxRetransmits uint16
}

// DataChannel is registered-callback style, the way pion exposes it. The
// callbacks may run on any goroutine.
type DataChannel interface {
	Label() string
	IsOpen() bool
	SendText(text string) error
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(text string))
	OnError(f func(err error))
	Close() error
}

// PeerEvents receives the engine's asynchronous notifications. Calls may come
// from any goroutine.
type PeerEvents interface {
	LocalCandidate(c protocol.Candidate)
	ConnectionStateChanged(state ConnState)
	DataChannelOffered(dc DataChannel)
	RemoteTrack(kind TrackKind)
}

// Signaler sends envelopes to the relay.
type Signaler interface {
	Send(env protocol.Envelope) error
}

// NopPeerEvents drops every engine notification.
type NopPeerEvents struct{}

func (NopPeerEvents) LocalCandidate(protocol.Candidate) {}
func (NopPeerEvents) ConnectionStateChanged(ConnState)  {}
func (NopPeerEvents) DataChannelOffered(DataChannel)    {}
func (NopPeerEvents) RemoteTrack(TrackKind)             {}
