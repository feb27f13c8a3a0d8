package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"

	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

// ICESettings is the ICE configuration as read from env and flags, before
// validation.
type ICESettings struct {
	JSON           string
	STUNURLs       string
	TURNURLs       string
	TURNUsername   string
	TURNCredential string

	// MintedTURN lifts the static username/credential requirement on TURN
	// entries; the relay signs those per request.
	MintedTURN bool
}

// Resolve returns the ICE server list. JSON wins over the convenience
// settings; with neither set the list is the public STUN default.
func (s ICESettings) Resolve() ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(s.JSON); raw != "" {
		servers, err := s.fromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	servers, err := s.fromConvenience()
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		servers = []webrtc.ICEServer{{URLs: []string{DefaultSTUNURL}}}
	}
	return servers, nil
}

// ParseICEServersJSON parses a JSON array of RTCIceServer-shaped objects.
// "urls" may be a string or a list.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	return ICESettings{}.fromJSON(raw)
}

// ParseICEServersFromConvenienceEnv builds servers from comma separated STUN
// and TURN URL lists sharing one TURN username/credential pair.
func ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	return ICESettings{
		STUNURLs:       stunURLs,
		TURNURLs:       turnURLs,
		TURNUsername:   turnUsername,
		TURNCredential: turnCredential,
	}.fromConvenience()
}

type iceServerEntry struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if json.Unmarshal(b, &one) == nil {
		*l = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("urls must be a string or an array of strings")
	}
	*l = many
	return nil
}

func (s ICESettings) fromJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		server := newICEServer(splitCommaSeparated(strings.Join(e.URLs, ",")), e.Username, e.Credential)
		if err := s.check(server); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func (s ICESettings) fromConvenience() ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(s.STUNURLs); len(urls) > 0 {
		server := webrtc.ICEServer{URLs: urls}
		if err := s.check(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if urls := splitCommaSeparated(s.TURNURLs); len(urls) > 0 {
		server := newICEServer(urls, s.TURNUsername, s.TURNCredential)
		if !s.MintedTURN && (server.Username == "" || server.Credential == nil) {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		if err := s.check(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

// newICEServer leaves Credential nil when blank so it is omitted on the wire.
func newICEServer(urls []string, username, credential string) webrtc.ICEServer {
	server := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(username)}
	if c := strings.TrimSpace(credential); c != "" {
		server.Credential = c
	}
	return server
}

func (s ICESettings) check(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, u := range server.URLs {
		scheme, _, ok := strings.Cut(u, ":")
		if !ok {
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
		switch scheme {
		case "turn", "turns":
			needsCreds = true
		case "stun", "stuns":
		default:
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}
	if !needsCreds || s.MintedTURN {
		return nil
	}

	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if server.Credential == nil {
		return errors.New("turn urls require credential")
	}
	return nil
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
