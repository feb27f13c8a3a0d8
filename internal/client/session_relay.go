package client

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

// HandleEnvelope queues an envelope received from the relay.
func (s *Session) HandleEnvelope(env protocol.Envelope) {
	s.post(func() { s.handleEnvelope(env) })
}

// SignalingLost reports that the relay connection closed. Presence is
// cleared and a call that is still being set up is abandoned; an established
// call keeps its media until the peer transport fails.
func (s *Session) SignalingLost(err error) {
	s.post(func() {
		s.log.Warn("signaling_lost", "err", err)
		s.obs.Notice("Disconnected from signaling server")
		s.presence = nil
		s.obs.PresenceChanged(nil)
		if cs := s.call; cs != nil && (cs.state == StateCalling || cs.state == StateRinging) {
			s.teardown(EventFailure, "")
		}
		s.early = nil
	})
}

func (s *Session) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.KindAssignID:
		s.selfID = env.ID
		s.log.Info("identity_assigned", "client_id", env.ID)
		s.obs.Identity(env.ID)

	case protocol.KindUserList:
		s.presence = lo.Filter(env.Users, func(u string, _ int) bool { return u != s.selfID })
		s.obs.PresenceChanged(append([]string(nil), s.presence...))

	case protocol.KindIncomingCall:
		s.onIncomingCall(env.CallerID, env.CallKind)

	case protocol.KindOfferSDP:
		s.onOffer(env.CallerID, env.SDP)

	case protocol.KindCallAccepted:
		if cs := s.call; cs != nil && cs.peerID == env.CalleeID && cs.state == StateCalling {
			s.obs.Notice("Call accepted, connecting...")
		}

	case protocol.KindAnswerSDP:
		s.onAnswer(env.CalleeID, env.SDP)

	case protocol.KindCallRejected:
		if cs := s.call; cs != nil && cs.peerID == env.CalleeID {
			s.teardown(EventRemoteRejected, "Call was rejected")
		}

	case protocol.KindCallEnded:
		if cs := s.call; cs != nil && cs.peerID == env.SenderID {
			s.teardown(EventRemoteEnded, "Call ended by remote peer")
		}
		if s.early != nil && s.early.from == env.SenderID {
			s.early = nil
		}

	case protocol.KindICECandidate:
		s.onRemoteCandidate(env.SenderID, env.Candidate)

	case protocol.KindChatMessage:
		ts := env.Timestamp
		if ts == 0 {
			ts = s.nowMillis()
		}
		msg := ChatMessage{Text: env.Text, Timestamp: ts, Direction: Received}
		visible, marked := s.book.Receive(env.SenderID, msg)
		if visible {
			s.obs.DirectMessage(env.SenderID, msg)
		} else if marked {
			s.obs.UnreadChanged(env.SenderID, true)
		}

	case protocol.KindMessageDelivered:
		s.log.Debug("chat_delivered", "target_id", env.TargetID, "timestamp", env.Timestamp)

	case protocol.KindError:
		s.log.Warn("relay_error", "reason", env.Reason, "message", env.Message, "target_id", env.TargetID)
		if env.Message != "" {
			s.obs.Notice(env.Message)
		}
		if cs := s.call; cs != nil && env.Reason == protocol.ReasonTargetNotFound &&
			cs.peerID == env.TargetID && cs.state == StateCalling {
			s.teardown(EventFailure, "")
		}

	default:
		s.log.Debug("envelope_ignored", "type", env.Type)
	}
}

func (s *Session) onIncomingCall(from string, kind protocol.CallKind) {
	if from == "" {
		return
	}
	if kind == "" {
		kind = protocol.CallAudio
	}
	if cs := s.call; cs != nil {
		if cs.peerID == from && cs.state == StateRinging {
			return
		}
		s.log.Info("incoming_call_busy", "peer_id", from)
		_ = s.send(protocol.Envelope{Type: protocol.KindCallRejected, TargetID: from})
		s.obs.Notice(fmt.Sprintf("Missed %s call from %s (busy)", kind, from))
		return
	}

	s.gen++
	cs := &callSession{gen: s.gen, peerID: from, kind: kind, role: roleCallee, state: StateIdle}
	if e := s.early; e != nil && e.from == from {
		offer := e.sdp
		cs.pendingOffer = &offer
		cs.pendingCandidates = e.candidates
	}
	s.early = nil
	s.call = cs
	_ = s.setState(cs, EventIncomingCall)
	s.obs.IncomingCall(from, kind)
	s.obs.Notice(fmt.Sprintf("Incoming %s call from %s", kind, from))
}

func (s *Session) onOffer(from string, sdp *protocol.SDP) {
	if from == "" || sdp == nil {
		return
	}
	cs := s.call
	switch {
	case cs == nil:
		// The relay does not order this against the incoming-call; hold it
		// until the notification arrives.
		s.early = &earlyOffer{from: from, sdp: *sdp}
	case cs.peerID == from && cs.state == StateRinging:
		offer := *sdp
		cs.pendingOffer = &offer
	default:
		s.log.Debug("offer_ignored", "peer_id", from, "state", cs.state)
	}
}

func (s *Session) onAnswer(from string, sdp *protocol.SDP) {
	cs := s.call
	if cs == nil || cs.peerID != from || cs.state != StateCalling || sdp == nil {
		return
	}
	if err := cs.peer.SetRemoteAnswer(*sdp); err != nil {
		s.log.Warn("remote_answer_failed", "peer_id", from, "err", err)
		s.obs.Notice(fmt.Sprintf("Error handling answer: %v", err))
		_ = s.send(protocol.Envelope{Type: protocol.KindCallEnd, TargetID: from})
		s.teardown(EventFailure, "")
		return
	}
	s.remoteDescriptionApplied(cs)
	_ = s.setState(cs, EventAnswerApplied)
	s.obs.Notice("Call connected")
}

func (s *Session) onRemoteCandidate(from string, c *protocol.Candidate) {
	if c == nil || c.Candidate == "" {
		return
	}
	cs := s.call
	if cs == nil {
		if e := s.early; e != nil && e.from == from {
			e.candidates = append(e.candidates, *c)
		}
		return
	}
	if cs.peerID != from {
		return
	}
	if !cs.remoteSet {
		cs.pendingCandidates = append(cs.pendingCandidates, *c)
		return
	}
	s.applyCandidate(cs, *c)
}

func (s *Session) applyCandidate(cs *callSession, c protocol.Candidate) {
	if err := cs.peer.AddICECandidate(c); err != nil {
		// Not fatal: other candidates may still connect.
		s.log.Warn("remote_candidate_failed", "peer_id", cs.peerID, "err", fmt.Errorf("%w: %v", ErrNegotiationFailure, err))
		s.obs.Notice(fmt.Sprintf("Failed to add ICE candidate: %v", err))
	}
}

func (s *Session) remoteDescriptionApplied(cs *callSession) {
	cs.remoteSet = true
	queued := cs.pendingCandidates
	cs.pendingCandidates = nil
	for _, c := range queued {
		s.applyCandidate(cs, c)
	}
}
