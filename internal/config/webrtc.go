package config

import (
	"fmt"
	"net"
	"strings"
)

const (
	envVarWebRTCUDPPortMin  = "WEBRTC_UDP_PORT_MIN"
	envVarWebRTCUDPPortMax  = "WEBRTC_UDP_PORT_MAX"
	envVarWebRTCUDPListenIP = "WEBRTC_UDP_LISTEN_IP"

	DefaultWebRTCUDPListenIP = "0.0.0.0"
)

// recommendedWebRTCUDPPortRangeSize keeps operators from pinning a call to a
// handful of ports; audio, video and the data channel each gather candidates.
const recommendedWebRTCUDPPortRangeSize = 16

type UDPPortRange struct {
	Min uint16
	Max uint16
}

func (r UDPPortRange) Size() int { return int(r.Max) - int(r.Min) + 1 }

func parseUDPPortRange(minRaw, maxRaw int) (*UDPPortRange, error) {
	if minRaw == 0 && maxRaw == 0 {
		return nil, nil
	}
	if minRaw == 0 || maxRaw == 0 {
		return nil, fmt.Errorf("%s and %s must be set together (or both unset)", envVarWebRTCUDPPortMin, envVarWebRTCUDPPortMax)
	}
	if minRaw < 1 || minRaw > 65535 {
		return nil, fmt.Errorf("%s: port %d out of range", envVarWebRTCUDPPortMin, minRaw)
	}
	if maxRaw < 1 || maxRaw > 65535 {
		return nil, fmt.Errorf("%s: port %d out of range", envVarWebRTCUDPPortMax, maxRaw)
	}
	if minRaw > maxRaw {
		return nil, fmt.Errorf("WebRTC UDP port range min (%d) must be <= max (%d)", minRaw, maxRaw)
	}
	r := &UDPPortRange{Min: uint16(minRaw), Max: uint16(maxRaw)}
	if r.Size() < recommendedWebRTCUDPPortRangeSize {
		return nil, fmt.Errorf("WebRTC UDP port range is too small: %d ports (min %d recommended)", r.Size(), recommendedWebRTCUDPPortRangeSize)
	}
	return r, nil
}

func parseListenIP(raw string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return nil, fmt.Errorf("invalid %s %q", envVarWebRTCUDPListenIP, raw)
	}
	return ip, nil
}

func IsUnspecifiedIP(ip net.IP) bool {
	return ip == nil || ip.Equal(net.IPv4zero) || ip.Equal(net.IPv6zero)
}
