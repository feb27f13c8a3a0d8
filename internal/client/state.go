package client

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAccessDenied  = errors.New("media access denied")
	ErrNegotiationFailure = errors.New("negotiation failure")
	ErrChannelExhausted   = errors.New("chat channel retries exhausted")
	ErrTransportLost      = errors.New("call transport lost")
	ErrInvalidState       = errors.New("invalid call state")
	ErrOfferPending       = errors.New("offer not received yet")
	ErrSessionClosed      = errors.New("session closed")
	ErrNoConversation     = errors.New("no conversation open")
)

type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCalling:
		return "CALLING"
	case StateRinging:
		return "RINGING"
	case StateConnected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is everything that can move a call between states.
type Event int

const (
	EventInitiate       Event = iota // local call request
	EventIncomingCall                // incoming-call from the relay
	EventAccept                      // local accept, answer sent
	EventReject                      // local reject
	EventAnswerApplied               // remote answer applied
	EventRemoteRejected              // call-rejected from the peer
	EventRemoteEnded                 // call-ended from the peer
	EventLocalEnd                    // local hang-up or cancel
	EventTransportLost               // ICE disconnected/failed/closed
	EventFailure                     // media or negotiation error, relay lost
)

func (e Event) String() string {
	switch e {
	case EventInitiate:
		return "initiate"
	case EventIncomingCall:
		return "incoming-call"
	case EventAccept:
		return "accept"
	case EventReject:
		return "reject"
	case EventAnswerApplied:
		return "answer-applied"
	case EventRemoteRejected:
		return "remote-rejected"
	case EventRemoteEnded:
		return "remote-ended"
	case EventLocalEnd:
		return "local-end"
	case EventTransportLost:
		return "transport-lost"
	case EventFailure:
		return "failure"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Next is the call state machine. It has no side effects; the session applies
// the returned state and performs the work that goes with it.
func Next(s State, e Event) (State, error) {
	switch s {
	case StateIdle:
		switch e {
		case EventInitiate:
			return StateCalling, nil
		case EventIncomingCall:
			return StateRinging, nil
		}
	case StateCalling:
		switch e {
		case EventAnswerApplied:
			return StateConnected, nil
		case EventRemoteRejected, EventRemoteEnded, EventLocalEnd, EventTransportLost, EventFailure:
			return StateIdle, nil
		}
	case StateRinging:
		switch e {
		case EventAccept:
			return StateConnected, nil
		case EventReject, EventRemoteRejected, EventRemoteEnded, EventLocalEnd, EventTransportLost, EventFailure:
			return StateIdle, nil
		}
	case StateConnected:
		switch e {
		case EventRemoteRejected, EventRemoteEnded, EventLocalEnd, EventTransportLost, EventFailure:
			return StateIdle, nil
		}
	}
	return s, fmt.Errorf("%w: %s in %s", ErrInvalidState, e, s)
}
