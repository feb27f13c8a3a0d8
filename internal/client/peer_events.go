package client

import "github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"

// peerEvents tags engine callbacks with the call generation they belong to.
type peerEvents struct {
	s   *Session
	gen uint64
}

func (e peerEvents) LocalCandidate(c protocol.Candidate) {
	e.s.post(func() {
		if !e.s.current(e.gen) {
			return
		}
		_ = e.s.send(protocol.Envelope{Type: protocol.KindICECandidate, TargetID: e.s.call.peerID, Candidate: &c})
	})
}

func (e peerEvents) ConnectionStateChanged(state ConnState) {
	e.s.post(func() {
		if !e.s.current(e.gen) {
			return
		}
		cs := e.s.call
		e.s.log.Debug("peer_connection_state", "peer_id", cs.peerID, "state", state)
		if state.lost() {
			e.s.log.Info("call_transport_lost", "peer_id", cs.peerID, "state", state, "err", ErrTransportLost)
			e.s.teardown(EventTransportLost, "Call connection lost")
			return
		}
		if cs.channel != nil {
			cs.channel.transportChanged(state)
		}
	})
}

func (e peerEvents) DataChannelOffered(dc DataChannel) {
	e.s.post(func() {
		if !e.s.current(e.gen) {
			_ = dc.Close()
			return
		}
		if cs := e.s.call; cs.channel != nil {
			cs.channel.adopt(dc)
		}
	})
}

func (e peerEvents) RemoteTrack(kind TrackKind) {
	e.s.post(func() {
		if e.s.current(e.gen) {
			e.s.obs.RemoteTrack(kind)
		}
	})
}
