package client

import (
	"fmt"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

// SendChat is the single chat entry point: inside a call the text goes over
// the data channel; outside a call it goes through the relay to the open
// conversation.
func (s *Session) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.do(func() error {
		if s.call != nil {
			return s.sendCallChat(text)
		}
		peer := s.book.Current()
		if peer == "" {
			s.obs.Notice("Message displayed locally only - not in a call")
			return ErrNoConversation
		}
		return s.sendDirect(peer, text)
	})
}

func (s *Session) sendCallChat(text string) error {
	cs := s.call
	msg := ChatMessage{Text: text, Timestamp: s.nowMillis(), Direction: Sent}
	cs.transcript = append(cs.transcript, msg)
	s.obs.CallMessage(msg)

	if cs.channel == nil {
		s.obs.Notice(noticeChatLocalPending)
		return nil
	}
	payload, err := encodeChannelPayload(msg.Text, msg.Timestamp)
	if err != nil {
		return err
	}
	sent, err := cs.channel.send(payload)
	if err != nil {
		s.obs.Notice(fmt.Sprintf("Error sending message: %v.", err))
		return err
	}
	if !sent {
		s.obs.Notice(noticeChatLocalPending)
	}
	return nil
}

// SendDirect sends relay chat to peer regardless of call state.
func (s *Session) SendDirect(peer, text string) error {
	peer, text = strings.TrimSpace(peer), strings.TrimSpace(text)
	if peer == "" {
		return ErrNoConversation
	}
	if text == "" {
		return nil
	}
	return s.do(func() error { return s.sendDirect(peer, text) })
}

func (s *Session) sendDirect(peer, text string) error {
	msg := ChatMessage{Text: text, Timestamp: s.nowMillis(), Direction: Sent}
	s.book.Append(peer, msg)
	if s.book.Current() == peer {
		s.obs.DirectMessage(peer, msg)
	}
	return s.send(protocol.Envelope{
		Type:      protocol.KindChatMessage,
		TargetID:  peer,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
}

func (s *Session) receiveCallChat(raw string) {
	msg := decodeChannelPayload(raw, s.nowMillis())
	s.call.transcript = append(s.call.transcript, msg)
	s.obs.CallMessage(msg)
}

// OpenConversation makes peer the conversation relay chat is rendered into
// and returns its history.
func (s *Session) OpenConversation(peer string) ([]ChatMessage, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil, ErrNoConversation
	}
	var history []ChatMessage
	err := s.do(func() error {
		var cleared bool
		history, cleared = s.book.Open(peer)
		if cleared {
			s.obs.UnreadChanged(peer, false)
		}
		return nil
	})
	return history, err
}

func (s *Session) CloseConversation() {
	s.book.Close()
}

// Chat exposes relay chat history and unread markers.
func (s *Session) Chat() *ChatBook { return s.book }
