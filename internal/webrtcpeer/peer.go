package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

// Engine is the pion-backed client.MediaEngine.
type Engine struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	log        *slog.Logger
}

var _ client.MediaEngine = (*Engine)(nil)

func NewEngine(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	api, err := NewAPI(opts)
	if err != nil {
		return nil, err
	}
	return &Engine{api: api, iceServers: opts.ICEServers, log: opts.Logger}, nil
}

func (e *Engine) AcquireMedia(ctx context.Context, kind protocol.CallKind) (client.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch kind {
	case protocol.CallAudio, protocol.CallVideo:
	default:
		return nil, fmt.Errorf("unsupported call kind %q", kind)
	}
	return newLocalMedia(kind == protocol.CallVideo)
}

// NewPeer creates a PeerConnection and forwards its callbacks to events.
func (e *Engine) NewPeer(events client.PeerEvents) (client.Peer, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, err
	}
	p := &peer{pc: pc, log: e.log}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		events.LocalCandidate(protocol.CandidateFromPion(c.ToJSON()))
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		events.ConnectionStateChanged(connStateFromICE(state))
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		events.DataChannelOffered(wrapDataChannel(dc))
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := client.TrackAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = client.TrackVideo
		}
		e.log.Debug("remote_track", "kind", kind, "codec", track.Codec().MimeType)
		events.RemoteTrack(kind)
		go drainRemoteTrack(track)
	})
	return p, nil
}

func connStateFromICE(state webrtc.ICEConnectionState) client.ConnState {
	switch state {
	case webrtc.ICEConnectionStateChecking:
		return client.ConnChecking
	case webrtc.ICEConnectionStateConnected:
		return client.ConnConnected
	case webrtc.ICEConnectionStateCompleted:
		return client.ConnCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return client.ConnDisconnected
	case webrtc.ICEConnectionStateFailed:
		return client.ConnFailed
	case webrtc.ICEConnectionStateClosed:
		return client.ConnClosed
	default:
		return client.ConnNew
	}
}

// drainRemoteTrack discards inbound RTP; there is no playback device.
func drainRemoteTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

type peer struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger
}

var _ client.Peer = (*peer)(nil)

func (p *peer) PeerConnection() *webrtc.PeerConnection { return p.pc }

func (p *peer) AddLocalMedia(m client.LocalMedia) error {
	lm, ok := m.(*localMedia)
	if !ok {
		return fmt.Errorf("unsupported local media %T", m)
	}
	return lm.attach(p.pc)
}

func (p *peer) CreateOffer() (protocol.SDP, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SDP{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.SDP{}, fmt.Errorf("set local offer: %w", err)
	}
	return protocol.SDPFromPion(offer), nil
}

func (p *peer) CreateAnswer(offer protocol.SDP) (protocol.SDP, error) {
	if offer.Type != webrtc.SDPTypeOffer.String() {
		return protocol.SDP{}, fmt.Errorf("expected offer, got %q", offer.Type)
	}
	desc, err := offer.ToPion()
	if err != nil {
		return protocol.SDP{}, err
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return protocol.SDP{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SDP{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.SDP{}, fmt.Errorf("set local answer: %w", err)
	}
	return protocol.SDPFromPion(answer), nil
}

func (p *peer) SetRemoteAnswer(answer protocol.SDP) error {
	if answer.Type != webrtc.SDPTypeAnswer.String() {
		return fmt.Errorf("expected answer, got %q", answer.Type)
	}
	desc, err := answer.ToPion()
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(desc)
}

func (p *peer) AddICECandidate(c protocol.Candidate) error {
	return p.pc.AddICECandidate(c.ToPion())
}

func (p *peer) CreateDataChannel(label string, opts client.DataChannelOptions) (client.DataChannel, error) {
	ordered := opts.Ordered
	maxRetransmits := opts.MaxRetransmits
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return nil, err
	}
	return wrapDataChannel(dc), nil
}

func (p *peer) Close() error {
	err := p.pc.Close()
	if errors.Is(err, webrtc.ErrConnectionClosed) {
		return nil
	}
	return err
}
