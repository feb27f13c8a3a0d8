package client

import (
	"log/slog"
	"time"
)

const (
	// MaxChannelAttempts bounds data channel creation per call.
	MaxChannelAttempts = 3

	DefaultChannelWatchdog = 5 * time.Second

	chatChannelLabel       = "chat"
	chatMaxRetransmits     = 3
	noticeChatEstablished  = "Chat connection established. You can now send messages."
	noticeChatClosed       = "Chat connection closed."
	noticeChatLocalPending = "Message displayed locally only - chat connection being established..."
	noticeChatErrorPrefix  = "Chat error: "
)

// channelManager owns the chat data channel of one call. All methods run on
// the session goroutine; engine callbacks are re-posted there tagged with the
// call generation and the channel they belong to.
type channelManager struct {
	s         *Session
	gen       uint64
	peer      Peer
	initiator bool
	log       *slog.Logger

	dc         DataChannel
	attempts   int
	connecting bool
	open       bool
	// closedAfterOpen stops automatic retries for the rest of the call.
	closedAfterOpen bool
	transportUp     bool
	exhausted       bool

	stopWatchdog func() bool
}

func newChannelManager(s *Session, gen uint64, peer Peer, initiator bool) *channelManager {
	return &channelManager{
		s:         s,
		gen:       gen,
		peer:      peer,
		initiator: initiator,
		log:       s.log.With("call_gen", gen),
	}
}

func (m *channelManager) IsOpen() bool { return m.open }

func (m *channelManager) Attempts() int { return m.attempts }

// attempt creates a new channel when the caller has no open or in-flight one
// and the retry budget allows it.
func (m *channelManager) attempt() {
	if !m.initiator || m.open || m.connecting || m.closedAfterOpen {
		return
	}
	if m.attempts >= MaxChannelAttempts {
		if !m.exhausted {
			m.exhausted = true
			m.log.Warn("chat_channel_unavailable", "err", ErrChannelExhausted, "attempts", m.attempts)
		}
		return
	}

	m.attempts++
	m.log.Debug("chat_channel_create", "attempt", m.attempts)
	dc, err := m.peer.CreateDataChannel(chatChannelLabel, DataChannelOptions{
		Ordered:        true,
		MaxRetransmits: chatMaxRetransmits,
	})
	if err != nil {
		m.log.Warn("chat_channel_create_failed", "attempt", m.attempts, "err", err)
		return
	}
	m.dc = dc
	m.connecting = true
	m.wire(dc)

	m.stopWatchdog = m.s.afterFunc(m.s.watchdog, func() {
		m.s.post(func() {
			if m.s.current(m.gen) {
				m.onWatchdog(dc)
			}
		})
	})

	if dc.IsOpen() {
		m.onOpen(dc)
	}
}

// adopt takes a channel the remote caller created.
func (m *channelManager) adopt(dc DataChannel) {
	if m.dc != nil && m.dc != dc {
		_ = m.dc.Close()
	}
	m.dc = dc
	m.connecting = false
	m.wire(dc)
	if dc.IsOpen() {
		m.onOpen(dc)
	}
}

func (m *channelManager) wire(dc DataChannel) {
	s, gen := m.s, m.gen
	dc.OnOpen(func() {
		s.post(func() {
			if s.current(gen) {
				m.onOpen(dc)
			}
		})
	})
	dc.OnClose(func() {
		s.post(func() {
			if s.current(gen) {
				m.onClose(dc)
			}
		})
	})
	dc.OnError(func(err error) {
		s.post(func() {
			if s.current(gen) {
				m.onError(dc, err)
			}
		})
	})
	dc.OnMessage(func(text string) {
		s.post(func() {
			if s.current(gen) && m.dc == dc {
				s.receiveCallChat(text)
			}
		})
	})
}

func (m *channelManager) onWatchdog(dc DataChannel) {
	if dc != m.dc || m.open {
		return
	}
	// The next connectivity signal may try again with a fresh channel.
	m.log.Info("chat_channel_timeout", "attempt", m.attempts)
	m.connecting = false
	m.dc = nil
	_ = dc.Close()
}

// onError reports the failure. A channel that never opened is dropped so the
// next connectivity signal or send can try again; an open one waits for its
// close callback.
func (m *channelManager) onError(dc DataChannel, err error) {
	if dc != m.dc {
		return
	}
	m.log.Warn("chat_channel_error", "err", err, "open", m.open)
	m.s.obs.Notice(noticeChatErrorPrefix + err.Error())
	m.connecting = false
	if m.open {
		return
	}
	if m.stopWatchdog != nil {
		m.stopWatchdog()
		m.stopWatchdog = nil
	}
	m.dc = nil
	_ = dc.Close()
}

func (m *channelManager) onOpen(dc DataChannel) {
	if dc != m.dc || m.open {
		return
	}
	if m.stopWatchdog != nil {
		m.stopWatchdog()
		m.stopWatchdog = nil
	}
	m.open = true
	m.connecting = false
	m.attempts = 0
	m.log.Info("chat_channel_open", "label", dc.Label())
	m.s.obs.ChatAvailable(true)
	m.s.obs.Notice(noticeChatEstablished)
}

func (m *channelManager) onClose(dc DataChannel) {
	if dc != m.dc {
		return
	}
	m.connecting = false
	if !m.open {
		m.dc = nil
		return
	}
	m.open = false
	m.closedAfterOpen = true
	m.log.Info("chat_channel_closed")
	m.s.obs.ChatAvailable(false)
	m.s.obs.Notice(noticeChatClosed)
}

// transportChanged feeds the connectivity signal that drives retries.
func (m *channelManager) transportChanged(state ConnState) {
	m.transportUp = state.established()
	if m.transportUp && !m.open && !m.connecting {
		m.attempt()
	}
}

// send delivers text when the channel is open. Otherwise it reports false and,
// while the transport is up, kicks off another attempt.
func (m *channelManager) send(text string) (bool, error) {
	if m.open {
		return true, m.dc.SendText(text)
	}
	if m.transportUp {
		m.attempt()
	}
	return false, nil
}

func (m *channelManager) close() {
	if m.stopWatchdog != nil {
		m.stopWatchdog()
		m.stopWatchdog = nil
	}
	wasOpen := m.open
	m.open = false
	m.connecting = false
	if m.dc != nil {
		_ = m.dc.Close()
		m.dc = nil
	}
	if wasOpen {
		m.s.obs.ChatAvailable(false)
	}
}
