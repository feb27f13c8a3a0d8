package main

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

type fakeController struct {
	calls []string
	snap  client.Snapshot
	book  *client.ChatBook
	err   error
}

func newFakeController() *fakeController {
	return &fakeController{book: client.NewChatBook()}
}

func (f *fakeController) record(s string) error {
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeController) Call(peerID string, kind protocol.CallKind) error {
	return f.record("call " + peerID + " " + string(kind))
}
func (f *fakeController) Accept() error { return f.record("accept") }
func (f *fakeController) Reject() error { return f.record("reject") }
func (f *fakeController) End() error    { return f.record("end") }
func (f *fakeController) ToggleAudio() (bool, error) {
	return false, f.record("mute")
}
func (f *fakeController) ToggleVideo() (bool, error) {
	return false, f.record("camera")
}
func (f *fakeController) SendChat(text string) error { return f.record("say " + text) }
func (f *fakeController) SendDirect(peer, text string) error {
	return f.record("dm " + peer + " " + text)
}
func (f *fakeController) OpenConversation(peer string) ([]client.ChatMessage, error) {
	history, _ := f.book.Open(peer)
	return history, f.record("open " + peer)
}
func (f *fakeController) CloseConversation()                 { f.calls = append(f.calls, "close") }
func (f *fakeController) Snapshot() (client.Snapshot, error) { return f.snap, nil }
func (f *fakeController) Chat() *client.ChatBook             { return f.book }

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line    string
		name    string
		args    []string
		rest    string
		wantErr bool
	}{
		{line: "", name: ""},
		{line: "call abc", name: "call", args: []string{"abc"}},
		{line: "CALL abc Video", name: "call", args: []string{"abc", "Video"}},
		{line: "call", wantErr: true},
		{line: "call abc screen", wantErr: true},
		{line: "say  hello   there ", name: "say", rest: "hello   there"},
		{line: "say", wantErr: true},
		{line: "dm abc hi there", name: "dm", args: []string{"abc"}, rest: "hi there"},
		{line: "dm abc", wantErr: true},
		{line: "open abc", name: "open", args: []string{"abc"}},
		{line: "open", wantErr: true},
		{line: "accept now", wantErr: true},
		{line: "mute", name: "mute"},
		{line: "dance", wantErr: true},
	}
	for _, tc := range cases {
		cmd, err := parseCommand(tc.line)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseCommand(%q) expected error, got %#v", tc.line, cmd)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseCommand(%q): %v", tc.line, err)
		}
		if cmd.name != tc.name || !slices.Equal(cmd.args, tc.args) || cmd.rest != tc.rest {
			t.Fatalf("parseCommand(%q)=%#v", tc.line, cmd)
		}
	}
}

func runLines(t *testing.T, c controller, lines ...string) string {
	t.Helper()
	var buf bytes.Buffer
	out := newConsoleObserver(&buf)
	for _, line := range lines {
		cmd, err := parseCommand(line)
		if err != nil {
			t.Fatalf("parseCommand(%q): %v", line, err)
		}
		if err := execute(c, out, cmd); err != nil {
			out.printf("! %v", err)
		}
	}
	return buf.String()
}

func TestExecuteDispatches(t *testing.T) {
	f := newFakeController()
	runLines(t, f,
		"call abc",
		"call abc video",
		"accept",
		"reject",
		"end",
		"mute",
		"camera",
		"say hi",
		"dm abc hello there",
		"open abc",
		"close",
	)
	want := []string{
		"call abc audio",
		"call abc video",
		"accept",
		"reject",
		"end",
		"mute",
		"camera",
		"say hi",
		"dm abc hello there",
		"open abc",
		"close",
	}
	if !slices.Equal(f.calls, want) {
		t.Fatalf("calls=%q\nwant=%q", f.calls, want)
	}
}

func TestExecuteReportsErrors(t *testing.T) {
	f := newFakeController()
	f.err = client.ErrInvalidState
	out := runLines(t, f, "accept")
	if !strings.Contains(out, "! "+client.ErrInvalidState.Error()) {
		t.Fatalf("output=%q", out)
	}
}

func TestExecuteStatusAndUnread(t *testing.T) {
	f := newFakeController()
	f.snap = client.Snapshot{SelfID: "me", Presence: []string{"a", "b"}}
	f.book.Receive("b", client.ChatMessage{Text: "yo", Timestamp: 1})

	out := runLines(t, f, "status", "users", "unread")
	for _, want := range []string{"me: idle", "online: a, b", "unread: b"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	f.snap = client.Snapshot{SelfID: "me", State: client.StateConnected, CallKind: protocol.CallVideo, PeerID: "a", ChatOpen: true}
	out = runLines(t, f, "history c", "history b")
	if !strings.Contains(out, "no messages with c") || !strings.Contains(out, "b < yo") {
		t.Fatalf("history output=%q", out)
	}
	if !slices.Equal(f.book.Unread(), []string{"b"}) {
		t.Fatalf("history must not clear unread: %v", f.book.Unread())
	}

	out = runLines(t, f, "status", "open b")
	if !strings.Contains(out, "CONNECTED video call with a (chat open)") {
		t.Fatalf("status output=%q", out)
	}
	if !strings.Contains(out, "conversation with b (1 messages)") || !strings.Contains(out, "b < yo") {
		t.Fatalf("open output=%q", out)
	}
}

func TestReplStopsOnQuit(t *testing.T) {
	f := newFakeController()
	var buf bytes.Buffer
	in := strings.NewReader("call abc\nbogus\nquit\nend\n")

	done := make(chan struct{})
	go func() {
		repl(context.Background(), f, newConsoleObserver(&buf), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("repl did not return")
	}
	if !slices.Equal(f.calls, []string{"call abc audio"}) {
		t.Fatalf("calls=%q", f.calls)
	}
	if !strings.Contains(buf.String(), `unknown command "bogus"`) {
		t.Fatalf("output=%q", buf.String())
	}
}

func TestConsoleObserverLines(t *testing.T) {
	var buf bytes.Buffer
	o := newConsoleObserver(&buf)
	o.IncomingCall("abc", protocol.CallVideo)
	o.StateChanged(client.StateIdle, client.StateRinging, "abc")
	o.UnreadChanged("abc", true)
	o.UnreadChanged("abc", false)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%q", lines)
	}
	if lines[1] != "* call IDLE -> RINGING (abc)" {
		t.Fatalf("state line=%q", lines[1])
	}
}
