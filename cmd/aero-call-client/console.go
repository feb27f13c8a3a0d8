package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

// consoleObserver prints session events as plain lines.
type consoleObserver struct {
	mu sync.Mutex
	w  io.Writer
}

var _ client.Observer = (*consoleObserver)(nil)

func newConsoleObserver(w io.Writer) *consoleObserver {
	return &consoleObserver{w: w}
}

func (o *consoleObserver) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format+"\n", args...)
}

func (o *consoleObserver) Identity(id string) { o.printf("* your id: %s", id) }

func (o *consoleObserver) StateChanged(from, to client.State, peer string) {
	if peer == "" {
		o.printf("* call %s -> %s", from, to)
		return
	}
	o.printf("* call %s -> %s (%s)", from, to, peer)
}

func (o *consoleObserver) Notice(text string) { o.printf("* %s", text) }

func (o *consoleObserver) PresenceChanged(users []string) {
	if len(users) == 0 {
		o.printf("* nobody else is online")
		return
	}
	o.printf("* online: %s", strings.Join(users, ", "))
}

func (o *consoleObserver) IncomingCall(from string, kind protocol.CallKind) {
	o.printf("* incoming %s call from %s (accept / reject)", kind, from)
}

func (o *consoleObserver) ChatAvailable(available bool) {
	o.printf("* in-call chat %s", lo.Ternary(available, "ready", "unavailable"))
}

func (o *consoleObserver) CallMessage(msg client.ChatMessage) {
	o.printf("%s", formatMessage("call", msg))
}

func (o *consoleObserver) DirectMessage(peer string, msg client.ChatMessage) {
	o.printf("%s", formatMessage(peer, msg))
}

func (o *consoleObserver) UnreadChanged(peer string, unread bool) {
	if unread {
		o.printf("* new message from %s (open %s)", peer, peer)
	}
}

func (o *consoleObserver) RemoteTrack(kind client.TrackKind) {
	o.printf("* receiving remote %s", kind)
}

func formatMessage(label string, msg client.ChatMessage) string {
	ts := time.UnixMilli(msg.Timestamp).Format("15:04:05")
	arrow := lo.Ternary(msg.Direction == client.Sent, ">", "<")
	return fmt.Sprintf("[%s] %s %s %s", ts, label, arrow, msg.Text)
}

// controller is the part of client.Session the console drives.
type controller interface {
	Call(peerID string, kind protocol.CallKind) error
	Accept() error
	Reject() error
	End() error
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	SendChat(text string) error
	SendDirect(peer, text string) error
	OpenConversation(peer string) ([]client.ChatMessage, error)
	CloseConversation()
	Snapshot() (client.Snapshot, error)
	Chat() *client.ChatBook
}

var _ controller = (*client.Session)(nil)

var errQuit = errors.New("quit")

type command struct {
	name string
	args []string
	// rest is everything after the first rest-taking argument, verbatim.
	rest string
}

const helpText = `commands:
  call <id> [audio|video]   start a call
  accept | reject           answer the ringing call
  end                       hang up
  say <text>                chat in the call, or to the open conversation
  open <id> | close         open or close a relay conversation
  history <id>              show relay chat with a user
  dm <id> <text>            relay chat to a user
  users | unread | status   show presence, unread peers, call state
  mute | camera             toggle microphone or camera
  quit`

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	cmd := command{name: strings.ToLower(name)}
	rest = strings.TrimSpace(rest)

	switch cmd.name {
	case "call":
		cmd.args = strings.Fields(rest)
		if len(cmd.args) < 1 || len(cmd.args) > 2 {
			return command{}, fmt.Errorf("usage: call <id> [audio|video]")
		}
		if len(cmd.args) == 2 {
			if kind := protocol.CallKind(strings.ToLower(cmd.args[1])); kind != protocol.CallAudio && kind != protocol.CallVideo {
				return command{}, fmt.Errorf("unknown call kind %q", cmd.args[1])
			}
		}
	case "say":
		if rest == "" {
			return command{}, fmt.Errorf("usage: say <text>")
		}
		cmd.rest = rest
	case "open", "history":
		cmd.args = strings.Fields(rest)
		if len(cmd.args) != 1 {
			return command{}, fmt.Errorf("usage: %s <id>", cmd.name)
		}
	case "dm":
		peer, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if peer == "" || text == "" {
			return command{}, fmt.Errorf("usage: dm <id> <text>")
		}
		cmd.args = []string{peer}
		cmd.rest = text
	case "accept", "reject", "end", "close", "users", "unread", "status", "mute", "camera", "help", "quit", "exit":
		if rest != "" {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	default:
		return command{}, fmt.Errorf("unknown command %q (try help)", name)
	}
	return cmd, nil
}

// execute runs one command. It returns errQuit for quit.
func execute(c controller, out *consoleObserver, cmd command) error {
	switch cmd.name {
	case "":
		return nil
	case "help":
		out.printf("%s", helpText)
	case "quit", "exit":
		return errQuit
	case "call":
		kind := protocol.CallAudio
		if len(cmd.args) == 2 {
			kind = protocol.CallKind(strings.ToLower(cmd.args[1]))
		}
		return c.Call(cmd.args[0], kind)
	case "accept":
		return c.Accept()
	case "reject":
		return c.Reject()
	case "end":
		return c.End()
	case "mute":
		_, err := c.ToggleAudio()
		return err
	case "camera":
		_, err := c.ToggleVideo()
		return err
	case "say":
		return c.SendChat(cmd.rest)
	case "dm":
		return c.SendDirect(cmd.args[0], cmd.rest)
	case "open":
		peer := cmd.args[0]
		history, err := c.OpenConversation(peer)
		if err != nil {
			return err
		}
		out.printf("* conversation with %s (%d messages)", peer, len(history))
		for _, msg := range history {
			out.printf("%s", formatMessage(peer, msg))
		}
	case "history":
		peer := cmd.args[0]
		history := c.Chat().History(peer)
		if len(history) == 0 {
			out.printf("* no messages with %s", peer)
			return nil
		}
		for _, msg := range history {
			out.printf("%s", formatMessage(peer, msg))
		}
	case "close":
		c.CloseConversation()
	case "users":
		snap, err := c.Snapshot()
		if err != nil {
			return err
		}
		out.PresenceChanged(snap.Presence)
	case "unread":
		peers := c.Chat().Unread()
		if len(peers) == 0 {
			out.printf("* no unread messages")
			return nil
		}
		out.printf("* unread: %s", strings.Join(peers, ", "))
	case "status":
		snap, err := c.Snapshot()
		if err != nil {
			return err
		}
		if snap.State == client.StateIdle {
			out.printf("* %s: idle", lo.Ternary(snap.SelfID == "", "(no id)", snap.SelfID))
			return nil
		}
		out.printf("* %s: %s %s call with %s (chat %s)", snap.SelfID, snap.State, snap.CallKind, snap.PeerID,
			lo.Ternary(snap.ChatOpen, "open", "closed"))
	default:
		return fmt.Errorf("unknown command %q", cmd.name)
	}
	return nil
}
