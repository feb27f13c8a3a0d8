package webrtcpeer

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/config"
)

// ICE timeouts. pion's defaults (5s/25s) leave a dead call on screen for
// half a minute; these report disconnection sooner.
const (
	DefaultICEDisconnectedTimeout = 5 * time.Second
	DefaultICEFailedTimeout       = 15 * time.Second
	DefaultICEKeepaliveInterval   = 2 * time.Second
)

type Options struct {
	ICEServers []webrtc.ICEServer
	Logger     *slog.Logger

	UDPPortRange *config.UDPPortRange
	UDPListenIP  net.IP

	// Net replaces the OS network stack. Tests pass a vnet.Net.
	Net transport.Net

	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	ICEKeepaliveInterval   time.Duration
}

// OptionsFromConfig maps the client configuration onto engine options.
func OptionsFromConfig(cfg config.ClientConfig, log *slog.Logger) Options {
	return Options{
		ICEServers:   cfg.ICEServers,
		Logger:       log,
		UDPPortRange: cfg.WebRTCUDPPortRange,
		UDPListenIP:  cfg.WebRTCUDPListenIP,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.ICEDisconnectedTimeout <= 0 {
		o.ICEDisconnectedTimeout = DefaultICEDisconnectedTimeout
	}
	if o.ICEFailedTimeout <= 0 {
		o.ICEFailedTimeout = DefaultICEFailedTimeout
	}
	if o.ICEKeepaliveInterval <= 0 {
		o.ICEKeepaliveInterval = DefaultICEKeepaliveInterval
	}
	return o
}

// NewAPI builds a pion API with the default codecs and the default RTCP
// interceptors (NACK, reports, TWCC).
func NewAPI(opts Options) (*webrtc.API, error) {
	opts = opts.withDefaults()

	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(opts.Logger)
	se.SetICETimeouts(opts.ICEDisconnectedTimeout, opts.ICEFailedTimeout, opts.ICEKeepaliveInterval)
	if err := ApplyNetworkSettings(&se, opts); err != nil {
		return nil, err
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
	), nil
}

func ApplyNetworkSettings(se *webrtc.SettingEngine, opts Options) error {
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	if opts.UDPPortRange != nil {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortRange.Min, opts.UDPPortRange.Max); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	// SettingEngine has no bind address; restrict gathering with IPFilter.
	if !config.IsUnspecifiedIP(opts.UDPListenIP) {
		listenIP := opts.UDPListenIP
		se.SetIPFilter(func(ip net.IP) bool {
			return ip.Equal(listenIP)
		})
	}
	return nil
}
