package webrtcpeer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
)

const opusFrameDuration = 20 * time.Millisecond

// opusSilence is a single Opus DTX silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// localMedia holds the outbound tracks of one call. There is no capture
// device behind them: audio carries Opus silence so the far side sees a live
// stream, video carries nothing until a source is attached.
type localMedia struct {
	mu      sync.Mutex
	order   []client.TrackKind
	tracks  map[client.TrackKind]*webrtc.TrackLocalStaticSample
	senders map[client.TrackKind][]*webrtc.RTPSender
	enabled map[client.TrackKind]bool
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
}

func newLocalMedia(withVideo bool) (*localMedia, error) {
	streamID := "aero-call-" + uuid.NewString()
	m := &localMedia{
		tracks:  make(map[client.TrackKind]*webrtc.TrackLocalStaticSample),
		senders: make(map[client.TrackKind][]*webrtc.RTPSender),
		enabled: make(map[client.TrackKind]bool),
		done:    make(chan struct{}),
	}

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	m.add(client.TrackAudio, audio)

	if withVideo {
		video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		m.add(client.TrackVideo, video)
	}

	go m.pumpSilence(audio)
	return m, nil
}

func (m *localMedia) add(kind client.TrackKind, track *webrtc.TrackLocalStaticSample) {
	m.order = append(m.order, kind)
	m.tracks[kind] = track
	m.enabled[kind] = true
}

func (m *localMedia) pumpSilence(track *webrtc.TrackLocalStaticSample) {
	tick := time.NewTicker(opusFrameDuration)
	defer tick.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-tick.C:
			// Unbound or replaced tracks swallow the write.
			_ = track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrameDuration})
		}
	}
}

func (m *localMedia) Kinds() []client.TrackKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]client.TrackKind(nil), m.order...)
}

// SetTrackEnabled detaches the track from its senders when disabled, so no
// RTP leaves for it, and reattaches it when enabled again.
func (m *localMedia) SetTrackEnabled(kind client.TrackKind, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	track, ok := m.tracks[kind]
	if !ok {
		return fmt.Errorf("no local %s track", kind)
	}
	if m.stopped {
		return fmt.Errorf("local media stopped")
	}
	for _, sender := range m.senders[kind] {
		var replacement webrtc.TrackLocal
		if enabled {
			replacement = track
		}
		if err := sender.ReplaceTrack(replacement); err != nil {
			return fmt.Errorf("replace %s track: %w", kind, err)
		}
	}
	m.enabled[kind] = enabled
	return nil
}

func (m *localMedia) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		close(m.done)
	})
}

// attach adds every track to pc and remembers the senders for later toggles.
func (m *localMedia) attach(pc *webrtc.PeerConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return fmt.Errorf("local media stopped")
	}
	for _, kind := range m.order {
		sender, err := pc.AddTrack(m.tracks[kind])
		if err != nil {
			return fmt.Errorf("add %s track: %w", kind, err)
		}
		if !m.enabled[kind] {
			if err := sender.ReplaceTrack(nil); err != nil {
				return fmt.Errorf("replace %s track: %w", kind, err)
			}
		}
		m.senders[kind] = append(m.senders[kind], sender)
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP keeps the interceptors fed; pion stalls senders whose RTCP is
// never read.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
