package client

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/samber/lo"
)

type Direction int

const (
	Received Direction = iota
	Sent
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// ChatMessage is one line of a transcript. Timestamp is milliseconds since
// the Unix epoch, as carried on the wire.
type ChatMessage struct {
	Text      string
	Timestamp int64
	Direction Direction
}

// channelPayload is the JSON carried over the in-call data channel.
type channelPayload struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func encodeChannelPayload(text string, ts int64) (string, error) {
	b, err := json.Marshal(channelPayload{Text: text, Timestamp: ts})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeChannelPayload falls back to the raw text when the peer did not send
// JSON.
func decodeChannelPayload(raw string, now int64) ChatMessage {
	var p channelPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Text == "" {
		return ChatMessage{Text: raw, Timestamp: now, Direction: Received}
	}
	if p.Timestamp == 0 {
		p.Timestamp = now
	}
	return ChatMessage{Text: p.Text, Timestamp: p.Timestamp, Direction: Received}
}

// ChatBook holds relay chat: per-peer history, unread markers and which
// conversation is open. History only grows for the life of the process.
type ChatBook struct {
	mu      sync.Mutex
	history map[string][]ChatMessage
	unread  map[string]bool
	open    string
}

func NewChatBook() *ChatBook {
	return &ChatBook{
		history: make(map[string][]ChatMessage),
		unread:  make(map[string]bool),
	}
}

func (b *ChatBook) Append(peer string, msg ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[peer] = append(b.history[peer], msg)
}

// Receive records an inbound message and reports whether it belongs to the
// open conversation. Otherwise the peer is marked unread; markedUnread is
// true only when that flag changed.
func (b *ChatBook) Receive(peer string, msg ChatMessage) (visible, markedUnread bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[peer] = append(b.history[peer], msg)
	if b.open == peer {
		return true, false
	}
	if b.unread[peer] {
		return false, false
	}
	b.unread[peer] = true
	return false, true
}

func (b *ChatBook) History(peer string) []ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.history[peer])
}

// Open makes peer the current conversation, clears its unread marker and
// returns its history. cleared reports whether a marker was removed.
func (b *ChatBook) Open(peer string) (history []ChatMessage, cleared bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = peer
	cleared = b.unread[peer]
	delete(b.unread, peer)
	return slices.Clone(b.history[peer]), cleared
}

func (b *ChatBook) Close() {
	b.mu.Lock()
	b.open = ""
	b.mu.Unlock()
}

func (b *ChatBook) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *ChatBook) IsUnread(peer string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread[peer]
}

// Unread lists peers with unread messages, sorted.
func (b *ChatBook) Unread() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	peers := lo.Keys(lo.PickBy(b.unread, func(_ string, v bool) bool { return v }))
	slices.Sort(peers)
	return peers
}
