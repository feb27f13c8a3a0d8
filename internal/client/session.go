package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

const taskQueueDepth = 256

type role int

const (
	roleCaller role = iota
	roleCallee
)

// Config wires a Session to its collaborators.
type Config struct {
	Engine   MediaEngine
	Signaler Signaler
	Observer Observer
	Logger   *slog.Logger

	// ChannelWatchdog defaults to DefaultChannelWatchdog.
	ChannelWatchdog time.Duration

	// Now and AfterFunc are replaced in tests.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// callSession is the one active call. It only exists outside IDLE.
type callSession struct {
	gen    uint64
	peerID string
	kind   protocol.CallKind
	role   role
	state  State

	media LocalMedia
	peer  Peer

	// pendingOffer holds the caller's offer until the callee accepts.
	pendingOffer *protocol.SDP
	remoteSet    bool
	// pendingCandidates wait for the remote description.
	pendingCandidates []protocol.Candidate

	channel    *channelManager
	transcript []ChatMessage

	audioOn bool
	videoOn bool
}

// earlyOffer is an offer-sdp that arrived before its incoming-call.
type earlyOffer struct {
	from       string
	sdp        protocol.SDP
	candidates []protocol.Candidate
}

// Session is the client-side call aggregate. Every state change runs on the
// goroutine executing Run; public methods hand work to it and wait.
type Session struct {
	engine MediaEngine
	sig    Signaler
	obs    Observer
	log    *slog.Logger

	now       func() time.Time
	afterFunc func(time.Duration, func()) func() bool
	watchdog  time.Duration

	tasks chan func()
	done  chan struct{}
	// ctx bounds engine calls made from the session goroutine.
	ctx context.Context

	book *ChatBook

	// Owned by the Run goroutine.
	selfID   string
	presence []string
	gen      uint64
	call     *callSession
	early    *earlyOffer
}

func New(cfg Config) *Session {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	if cfg.ChannelWatchdog <= 0 {
		cfg.ChannelWatchdog = DefaultChannelWatchdog
	}
	return &Session{
		engine:    cfg.Engine,
		sig:       cfg.Signaler,
		obs:       cfg.Observer,
		log:       cfg.Logger,
		now:       cfg.Now,
		afterFunc: cfg.AfterFunc,
		watchdog:  cfg.ChannelWatchdog,
		tasks:     make(chan func(), taskQueueDepth),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		book:      NewChatBook(),
	}
}

// Run processes session work until ctx is cancelled. Any active call is torn
// down on the way out.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			if s.call != nil {
				s.teardown(EventFailure, "")
			}
			return ctx.Err()
		case task := <-s.tasks:
			task()
		}
	}
}

// post queues task for the session goroutine. It is dropped once Run exits.
func (s *Session) post(task func()) {
	select {
	case s.tasks <- task:
	case <-s.done:
	}
}

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.tasks <- func() { result <- fn() }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// current reports whether gen still identifies the active call. Results of
// engine work started for an older call are discarded.
func (s *Session) current(gen uint64) bool {
	return s.call != nil && s.call.gen == gen
}

func (s *Session) nowMillis() int64 { return s.now().UnixMilli() }

func (s *Session) setState(cs *callSession, ev Event) error {
	next, err := Next(cs.state, ev)
	if err != nil {
		return err
	}
	prev := cs.state
	cs.state = next
	s.log.Info("call_state_changed", "from", prev, "to", next, "event", ev, "peer_id", cs.peerID)
	s.obs.StateChanged(prev, next, cs.peerID)
	return nil
}

func (s *Session) send(env protocol.Envelope) error {
	if s.sig == nil {
		return ErrSessionClosed
	}
	if err := s.sig.Send(env); err != nil {
		s.log.Warn("signal_send_failed", "type", env.Type, "target_id", env.TargetID, "err", err)
		return err
	}
	return nil
}

// Call starts an outgoing call: local media, a negotiation object, the chat
// channel, then call-request followed by offer-sdp.
func (s *Session) Call(peerID string, kind protocol.CallKind) error {
	return s.do(func() error { return s.initiate(peerID, kind) })
}

func (s *Session) initiate(peerID string, kind protocol.CallKind) error {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return fmt.Errorf("%w: no peer id", ErrInvalidState)
	}
	if kind == "" {
		kind = protocol.CallAudio
	}
	if s.call != nil {
		return fmt.Errorf("%w: already %s", ErrInvalidState, s.call.state)
	}

	s.gen++
	cs := &callSession{gen: s.gen, peerID: peerID, kind: kind, role: roleCaller, state: StateIdle}
	s.call = cs
	if err := s.setState(cs, EventInitiate); err != nil {
		s.call = nil
		return err
	}

	if err := s.prepare(cs); err != nil {
		return err
	}
	cs.channel.attempt()

	offer, err := cs.peer.CreateOffer()
	if err != nil {
		s.obs.Notice(fmt.Sprintf("Error initiating call: %v", err))
		s.teardown(EventFailure, "")
		return fmt.Errorf("%w: %v", ErrNegotiationFailure, err)
	}

	if err := s.send(protocol.Envelope{Type: protocol.KindCallRequest, TargetID: peerID, CallKind: kind}); err != nil {
		s.teardown(EventFailure, "")
		return err
	}
	if err := s.send(protocol.Envelope{Type: protocol.KindOfferSDP, TargetID: peerID, SDP: &offer}); err != nil {
		s.teardown(EventFailure, "")
		return err
	}
	s.obs.Notice(fmt.Sprintf("Calling %s (%s)...", peerID, kind))
	return nil
}

// prepare acquires media and builds the negotiation object for cs. On failure
// the call is torn down and the wrapped error returned.
func (s *Session) prepare(cs *callSession) error {
	media, err := s.engine.AcquireMedia(s.ctx, cs.kind)
	if err != nil {
		s.obs.Notice(fmt.Sprintf("Media access error: %v. Please ensure your microphone is connected and permissions are granted.", err))
		s.teardown(EventFailure, "")
		return fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}
	cs.media = media
	cs.audioOn = true
	cs.videoOn = lo.Contains(media.Kinds(), TrackVideo)

	peer, err := s.engine.NewPeer(peerEvents{s: s, gen: cs.gen})
	if err != nil {
		s.obs.Notice(fmt.Sprintf("Could not create connection: %v", err))
		s.teardown(EventFailure, "")
		return fmt.Errorf("%w: %v", ErrNegotiationFailure, err)
	}
	cs.peer = peer
	cs.channel = newChannelManager(s, cs.gen, peer, cs.role == roleCaller)

	if err := peer.AddLocalMedia(media); err != nil {
		s.obs.Notice(fmt.Sprintf("Could not attach local media: %v", err))
		s.teardown(EventFailure, "")
		return fmt.Errorf("%w: %v", ErrNegotiationFailure, err)
	}
	return nil
}

// Accept answers the ringing call with the buffered offer.
func (s *Session) Accept() error {
	return s.do(s.accept)
}

func (s *Session) accept() error {
	cs := s.call
	if cs == nil || cs.state != StateRinging {
		return fmt.Errorf("%w: no incoming call", ErrInvalidState)
	}
	if cs.pendingOffer == nil {
		return ErrOfferPending
	}
	peerID := cs.peerID

	if err := s.prepare(cs); err != nil {
		_ = s.send(protocol.Envelope{Type: protocol.KindCallRejected, TargetID: peerID})
		return err
	}

	answer, err := cs.peer.CreateAnswer(*cs.pendingOffer)
	if err != nil {
		s.obs.Notice(fmt.Sprintf("Error accepting call: %v", err))
		_ = s.send(protocol.Envelope{Type: protocol.KindCallRejected, TargetID: peerID})
		s.teardown(EventFailure, "")
		return fmt.Errorf("%w: %v", ErrNegotiationFailure, err)
	}
	cs.pendingOffer = nil
	s.remoteDescriptionApplied(cs)

	if err := s.send(protocol.Envelope{Type: protocol.KindCallAccepted, TargetID: peerID}); err != nil {
		s.teardown(EventFailure, "")
		return err
	}
	if err := s.send(protocol.Envelope{Type: protocol.KindAnswerSDP, TargetID: peerID, SDP: &answer}); err != nil {
		s.teardown(EventFailure, "")
		return err
	}
	return s.setState(cs, EventAccept)
}

// Reject declines the ringing call.
func (s *Session) Reject() error {
	return s.do(s.reject)
}

func (s *Session) reject() error {
	cs := s.call
	if cs == nil || cs.state != StateRinging {
		return fmt.Errorf("%w: no incoming call", ErrInvalidState)
	}
	err := s.send(protocol.Envelope{Type: protocol.KindCallRejected, TargetID: cs.peerID})
	s.teardown(EventReject, "")
	return err
}

// End hangs up, cancels an outgoing call or rejects a ringing one.
func (s *Session) End() error {
	return s.do(func() error {
		cs := s.call
		if cs == nil {
			return fmt.Errorf("%w: not in a call", ErrInvalidState)
		}
		if cs.state == StateRinging {
			return s.reject()
		}
		err := s.send(protocol.Envelope{Type: protocol.KindCallEnd, TargetID: cs.peerID})
		s.teardown(EventLocalEnd, "Call ended")
		return err
	})
}

// ToggleAudio mutes or unmutes the microphone and reports the new state.
func (s *Session) ToggleAudio() (bool, error) {
	var on bool
	err := s.do(func() error {
		cs := s.call
		if cs == nil || cs.media == nil {
			return fmt.Errorf("%w: no local media", ErrInvalidState)
		}
		if err := cs.media.SetTrackEnabled(TrackAudio, !cs.audioOn); err != nil {
			return err
		}
		cs.audioOn = !cs.audioOn
		on = cs.audioOn
		s.obs.Notice(lo.Ternary(on, "Microphone unmuted", "Microphone muted"))
		return nil
	})
	return on, err
}

// ToggleVideo turns the camera on or off in a video call.
func (s *Session) ToggleVideo() (bool, error) {
	var on bool
	err := s.do(func() error {
		cs := s.call
		if cs == nil || cs.media == nil || !lo.Contains(cs.media.Kinds(), TrackVideo) {
			return fmt.Errorf("%w: no local video", ErrInvalidState)
		}
		if err := cs.media.SetTrackEnabled(TrackVideo, !cs.videoOn); err != nil {
			return err
		}
		cs.videoOn = !cs.videoOn
		on = cs.videoOn
		s.obs.Notice(lo.Ternary(on, "Camera on", "Camera off"))
		return nil
	})
	return on, err
}

// Snapshot is a consistent read of the session's public state.
type Snapshot struct {
	SelfID     string
	Presence   []string
	State      State
	PeerID     string
	CallKind   protocol.CallKind
	ChatOpen   bool
	Transcript []ChatMessage
}

func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap.SelfID = s.selfID
		snap.Presence = append([]string(nil), s.presence...)
		if cs := s.call; cs != nil {
			snap.State = cs.state
			snap.PeerID = cs.peerID
			snap.CallKind = cs.kind
			snap.ChatOpen = cs.channel != nil && cs.channel.IsOpen()
			snap.Transcript = append([]ChatMessage(nil), cs.transcript...)
		}
		return nil
	})
	return snap, err
}

// teardown releases everything the call owns and returns to IDLE. notice is
// shown when non-empty.
func (s *Session) teardown(ev Event, notice string) {
	cs := s.call
	if cs == nil {
		return
	}
	if cs.channel != nil {
		cs.channel.close()
	}
	if cs.peer != nil {
		if err := cs.peer.Close(); err != nil {
			s.log.Debug("peer_close_failed", "err", err)
		}
	}
	if cs.media != nil {
		cs.media.Stop()
	}
	if cs.state != StateIdle {
		if err := s.setState(cs, ev); err != nil {
			s.log.Error("call_teardown_transition", "err", err)
		}
	}
	s.call = nil
	if notice != "" {
		s.obs.Notice(notice)
	}
}

// IsClosed is a helper for callers that treat ErrSessionClosed as shutdown.
func IsClosed(err error) bool { return errors.Is(err, ErrSessionClosed) }
