package client

import "github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"

// Observer is how the session reports to a user interface. Methods are called
// from the session goroutine and must not call back into the Session
// synchronously.
type Observer interface {
	Identity(id string)
	StateChanged(from, to State, peer string)
	// Notice is a user-visible system line (errors included).
	Notice(text string)
	PresenceChanged(users []string)
	IncomingCall(from string, kind protocol.CallKind)
	ChatAvailable(available bool)
	// CallMessage is a line of the in-call transcript.
	CallMessage(msg ChatMessage)
	// DirectMessage is a relay chat line for the open conversation.
	DirectMessage(peer string, msg ChatMessage)
	UnreadChanged(peer string, unread bool)
	RemoteTrack(kind TrackKind)
}

// NopObserver ignores everything. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) Identity(string)                        {}
func (NopObserver) StateChanged(State, State, string)      {}
func (NopObserver) Notice(string)                          {}
func (NopObserver) PresenceChanged([]string)               {}
func (NopObserver) IncomingCall(string, protocol.CallKind) {}
func (NopObserver) ChatAvailable(bool)                     {}
func (NopObserver) CallMessage(ChatMessage)                {}
func (NopObserver) DirectMessage(string, ChatMessage)      {}
func (NopObserver) UnreadChanged(string, bool)             {}
func (NopObserver) RemoteTrack(TrackKind)                  {}
