package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/protocol"
)

type fakeMedia struct {
	mu      sync.Mutex
	kinds   []TrackKind
	enabled map[TrackKind]bool
	stopped bool
}

func (m *fakeMedia) Kinds() []TrackKind { return m.kinds }

func (m *fakeMedia) SetTrackEnabled(kind TrackKind, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled[kind] = enabled
	return nil
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *fakeMedia) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type fakeDC struct {
	mu      sync.Mutex
	open    bool
	closed  bool
	sent    []string
	onOpen  func()
	onClose func()
	onMsg   func(string)
	onErr   func(error)
}

func (d *fakeDC) Label() string { return chatChannelLabel }

func (d *fakeDC) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *fakeDC) SendText(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errors.New("channel not open")
	}
	d.sent = append(d.sent, text)
	return nil
}

func (d *fakeDC) OnOpen(f func()) {
	d.mu.Lock()
	d.onOpen = f
	d.mu.Unlock()
}

func (d *fakeDC) OnClose(f func()) {
	d.mu.Lock()
	d.onClose = f
	d.mu.Unlock()
}

func (d *fakeDC) OnMessage(f func(string)) {
	d.mu.Lock()
	d.onMsg = f
	d.mu.Unlock()
}

func (d *fakeDC) OnError(f func(error)) {
	d.mu.Lock()
	d.onErr = f
	d.mu.Unlock()
}

func (d *fakeDC) Close() error {
	d.mu.Lock()
	d.closed = true
	d.open = false
	d.mu.Unlock()
	return nil
}

func (d *fakeDC) fireOpen() {
	d.mu.Lock()
	d.open = true
	f := d.onOpen
	d.mu.Unlock()
	f()
}

func (d *fakeDC) fireClose() {
	d.mu.Lock()
	d.open = false
	f := d.onClose
	d.mu.Unlock()
	f()
}

func (d *fakeDC) fireMessage(text string) {
	d.mu.Lock()
	f := d.onMsg
	d.mu.Unlock()
	f(text)
}

func (d *fakeDC) fireError(err error) {
	d.mu.Lock()
	f := d.onErr
	d.mu.Unlock()
	f(err)
}

func (d *fakeDC) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDC) sentTexts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

type fakePeer struct {
	events PeerEvents

	mu           sync.Mutex
	media        LocalMedia
	offerFor     *protocol.SDP
	remoteAnswer *protocol.SDP
	candidates   []protocol.Candidate
	channels     []*fakeDC
	closed       bool

	answerErr    error
	candidateErr error
}

func (p *fakePeer) AddLocalMedia(media LocalMedia) error {
	p.mu.Lock()
	p.media = media
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) CreateOffer() (protocol.SDP, error) {
	return protocol.SDP{Type: "offer", SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer(offer protocol.SDP) (protocol.SDP, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.answerErr != nil {
		return protocol.SDP{}, p.answerErr
	}
	p.offerFor = &offer
	return protocol.SDP{Type: "answer", SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetRemoteAnswer(answer protocol.SDP) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteAnswer = &answer
	return nil
}

func (p *fakePeer) AddICECandidate(c protocol.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.candidateErr != nil {
		return p.candidateErr
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) CreateDataChannel(label string, opts DataChannelOptions) (DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dc := &fakeDC{}
	p.channels = append(p.channels, dc)
	return dc, nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) channel(i int) *fakeDC {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[i]
}

func (p *fakePeer) channelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

func (p *fakePeer) appliedCandidates() []protocol.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Candidate(nil), p.candidates...)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeEngine struct {
	mu       sync.Mutex
	mediaErr error
	media    []*fakeMedia
	peers    []*fakePeer

	// configure is applied to each new peer before it is returned.
	configure func(*fakePeer)
}

func (e *fakeEngine) AcquireMedia(ctx context.Context, kind protocol.CallKind) (LocalMedia, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mediaErr != nil {
		return nil, e.mediaErr
	}
	kinds := []TrackKind{TrackAudio}
	if kind == protocol.CallVideo {
		kinds = append(kinds, TrackVideo)
	}
	m := &fakeMedia{kinds: kinds, enabled: map[TrackKind]bool{}}
	e.media = append(e.media, m)
	return m, nil
}

func (e *fakeEngine) NewPeer(events PeerEvents) (Peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &fakePeer{events: events}
	if e.configure != nil {
		e.configure(p)
	}
	e.peers = append(e.peers, p)
	return p, nil
}

func (e *fakeEngine) peer(i int) *fakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peers[i]
}

func (e *fakeEngine) lastMedia() *fakeMedia {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.media[len(e.media)-1]
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []protocol.Envelope
}

func (s *fakeSignaler) Send(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSignaler) take() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

func kinds(envs []protocol.Envelope) []protocol.Kind {
	out := make([]protocol.Kind, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

type recordingObserver struct {
	NopObserver

	mu       sync.Mutex
	notices  []string
	states   []State
	unread   map[string]bool
	direct   []ChatMessage
	call     []ChatMessage
	presence []string
	chatOpen bool
}

func (o *recordingObserver) Notice(text string) {
	o.mu.Lock()
	o.notices = append(o.notices, text)
	o.mu.Unlock()
}

func (o *recordingObserver) StateChanged(_, to State, _ string) {
	o.mu.Lock()
	o.states = append(o.states, to)
	o.mu.Unlock()
}

func (o *recordingObserver) UnreadChanged(peer string, unread bool) {
	o.mu.Lock()
	if o.unread == nil {
		o.unread = map[string]bool{}
	}
	o.unread[peer] = unread
	o.mu.Unlock()
}

func (o *recordingObserver) DirectMessage(_ string, msg ChatMessage) {
	o.mu.Lock()
	o.direct = append(o.direct, msg)
	o.mu.Unlock()
}

func (o *recordingObserver) CallMessage(msg ChatMessage) {
	o.mu.Lock()
	o.call = append(o.call, msg)
	o.mu.Unlock()
}

func (o *recordingObserver) PresenceChanged(users []string) {
	o.mu.Lock()
	o.presence = users
	o.mu.Unlock()
}

func (o *recordingObserver) ChatAvailable(available bool) {
	o.mu.Lock()
	o.chatOpen = available
	o.mu.Unlock()
}

func (o *recordingObserver) sawNotice(substr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, n := range o.notices {
		if strings.Contains(strings.ToLower(n), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

// fakeTimers records AfterFunc calls; tests fire them by hand.
type fakeTimers struct {
	mu    sync.Mutex
	fns   []func()
	alive []bool
}

func (f *fakeTimers) AfterFunc(_ time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.fns)
	f.fns = append(f.fns, fn)
	f.alive = append(f.alive, true)
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		was := f.alive[i]
		f.alive[i] = false
		return was
	}
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn, alive := f.fns[i], f.alive[i]
	f.alive[i] = false
	f.mu.Unlock()
	if alive {
		fn()
	}
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

type harness struct {
	s      *Session
	engine *fakeEngine
	sig    *fakeSignaler
	obs    *recordingObserver
	timers *fakeTimers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine: &fakeEngine{},
		sig:    &fakeSignaler{},
		obs:    &recordingObserver{},
		timers: &fakeTimers{},
	}
	h.s = New(Config{
		Engine:    h.engine,
		Signaler:  h.sig,
		Observer:  h.obs,
		Now:       func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		AfterFunc: h.timers.AfterFunc,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h.deliver(protocol.Envelope{Type: protocol.KindAssignID, ID: "x1"})
	return h
}

// deliver hands env to the session and waits until it has been processed.
func (h *harness) deliver(env protocol.Envelope) {
	h.s.HandleEnvelope(env)
	h.sync()
}

// sync waits for every task queued so far.
func (h *harness) sync() {
	_, _ = h.s.Snapshot()
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}
