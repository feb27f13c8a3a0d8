package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// Kind is the envelope discriminator carried in the "type" field.
type Kind string

// Client -> relay kinds. All of them are directed at a targetId.
const (
	KindCallRequest  Kind = "call-request"
	KindOfferSDP     Kind = "offer-sdp"
	KindAnswerSDP    Kind = "answer-sdp"
	KindCallAccepted Kind = "call-accepted"
	KindCallRejected Kind = "call-rejected"
	KindICECandidate Kind = "ice-candidate"
	KindCallEnd      Kind = "call-end"
	KindChatMessage  Kind = "chat-message"
)

// Relay -> client kinds that have no client -> relay counterpart.
const (
	KindAssignID         Kind = "assign-id"
	KindUserList         Kind = "user-list"
	KindIncomingCall     Kind = "incoming-call"
	KindCallEnded        Kind = "call-ended"
	KindMessageDelivered Kind = "message-delivered"
	KindError            Kind = "error"
)

// Directed reports whether k is one of the kinds a client may send to the relay.
func (k Kind) Directed() bool {
	switch k {
	case KindCallRequest, KindOfferSDP, KindAnswerSDP, KindCallAccepted,
		KindCallRejected, KindICECandidate, KindCallEnd, KindChatMessage:
		return true
	default:
		return false
	}
}

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// Error reasons carried in error envelopes.
const (
	ReasonTargetNotFound = "target-not-found"
	ReasonRateLimited    = "rate-limited"
	ReasonBadMessage     = "bad-message"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the single message shape exchanged with the relay. Which fields
// are populated depends on Type; see Validate for the inbound rules.
type Envelope struct {
	Type Kind `json:"type"`

	TargetID string `json:"targetId,omitempty" validate:"omitempty,max=128"`
	CallerID string `json:"callerId,omitempty"`
	CalleeID string `json:"calleeId,omitempty"`
	SenderID string `json:"senderId,omitempty"`

	ID    string   `json:"id,omitempty"`
	Users []string `json:"users,omitempty"`

	CallKind CallKind `json:"callKind,omitempty" validate:"omitempty,oneof=audio video"`
	// LegacyCallKind is the "callType" spelling used by older browser
	// clients. Parse and Decode fold it into CallKind; the relay sets both on
	// incoming-call.
	LegacyCallKind CallKind `json:"callType,omitempty" validate:"omitempty,oneof=audio video"`

	SDP       *SDP       `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`

	Text      string `json:"text,omitempty" validate:"omitempty,max=16384"`
	Timestamp int64  `json:"timestamp,omitempty" validate:"gte=0"`

	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON always emits "users" for user-list envelopes, even when the
// presence set is empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	if e.Type != KindUserList {
		return json.Marshal(plain(e))
	}
	users := e.Users
	if users == nil {
		users = []string{}
	}
	return json.Marshal(struct {
		plain
		Users []string `json:"users"`
	}{plain: plain(e), Users: users})
}

var validate = validator.New()

// Parse decodes a single inbound envelope and validates it. Unknown fields are
// tolerated; trailing data after the JSON object is not.
func Parse(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("%w: unexpected trailing data", ErrMalformedEnvelope)
	}
	if env.CallKind == "" {
		env.CallKind = env.LegacyCallKind
	}
	env.LegacyCallKind = ""
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks an envelope received from a client against the closed set
// of directed kinds and the fields each of them requires.
func (e Envelope) Validate() error {
	if !e.Type.Directed() {
		return fmt.Errorf("%w: unsupported type %q", ErrMalformedEnvelope, e.Type)
	}
	if e.TargetID == "" {
		return fmt.Errorf("%w: %s missing targetId", ErrMalformedEnvelope, e.Type)
	}
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Type, err)
	}

	switch e.Type {
	case KindOfferSDP, KindAnswerSDP:
		if e.SDP == nil || e.SDP.SDP == "" {
			return fmt.Errorf("%w: %s missing sdp", ErrMalformedEnvelope, e.Type)
		}
	case KindICECandidate:
		if e.Candidate == nil {
			return fmt.Errorf("%w: ice-candidate missing candidate", ErrMalformedEnvelope)
		}
	case KindChatMessage:
		if e.Text == "" {
			return fmt.Errorf("%w: chat-message missing text", ErrMalformedEnvelope)
		}
	}
	return nil
}

// Encode marshals env for the wire.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses an envelope sent by the relay. Unlike Parse it accepts every
// kind and performs no per-kind validation.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if env.CallKind == "" {
		env.CallKind = env.LegacyCallKind
	}
	env.LegacyCallKind = ""
	return env, nil
}
