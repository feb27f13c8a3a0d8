package webrtcpeer

import (
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
)

// dataChannel adapts a pion DataChannel to the text-only chat channel the
// session uses. Binary messages are dropped.
type dataChannel struct {
	dc *webrtc.DataChannel
}

var _ client.DataChannel = (*dataChannel)(nil)

func wrapDataChannel(dc *webrtc.DataChannel) *dataChannel {
	return &dataChannel{dc: dc}
}

func (d *dataChannel) Label() string { return d.dc.Label() }

func (d *dataChannel) IsOpen() bool {
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (d *dataChannel) SendText(text string) error { return d.dc.SendText(text) }

func (d *dataChannel) OnOpen(f func()) { d.dc.OnOpen(f) }

func (d *dataChannel) OnClose(f func()) { d.dc.OnClose(f) }

func (d *dataChannel) OnMessage(f func(text string)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		f(string(msg.Data))
	})
}

func (d *dataChannel) OnError(f func(err error)) { d.dc.OnError(f) }

func (d *dataChannel) Close() error { return d.dc.Close() }
