package signalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/config"
)

const maxICEResponseBytes = 64 * 1024

// ICEEndpoint maps a relay WebSocket URL to its GET /webrtc/ice URL.
func ICEEndpoint(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = "/webrtc/ice"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// FetchICEServers asks the relay which ICE servers to use. TURN entries come
// back with short-lived credentials.
func FetchICEServers(ctx context.Context, hc *http.Client, relayURL, origin string) ([]webrtc.ICEServer, error) {
	if hc == nil {
		hc = &http.Client{Timeout: dialTimeout}
	}
	endpoint, err := ICEEndpoint(relayURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxICEResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read ice servers: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ice servers: %s: %s", resp.Status, body)
	}

	var payload struct {
		ICEServers json.RawMessage `json:"iceServers"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}
	if len(payload.ICEServers) == 0 {
		return nil, fmt.Errorf("decode ice servers: missing iceServers")
	}
	return config.ParseICEServersJSON(string(payload.ICEServers))
}
