package httpserver

import (
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/turnrest"
)

// iceSource answers GET /webrtc/ice: the configured ICE servers, with TURN
// entries carrying per-request TURN REST credentials when a shared secret is
// configured.
type iceSource struct {
	servers []webrtc.ICEServer
	turn    *turnrest.Generator
	err     error
}

func newICESource(s *Server) *iceSource {
	src := &iceSource{servers: s.cfg.ICEServers}
	if src.servers == nil {
		src.servers = []webrtc.ICEServer{}
	}
	if rest := s.cfg.TURNREST; rest.Enabled() {
		g, err := turnrest.NewGenerator(turnrest.Config{
			SharedSecret:   rest.SharedSecret,
			TTL:            time.Duration(rest.TTLSeconds) * time.Second,
			UsernamePrefix: rest.UsernamePrefix,
		})
		if err != nil {
			s.log.Error("turn rest credentials disabled", "err", err)
			src.err = err
		}
		src.turn = g
	}
	return src
}

func (src *iceSource) ready() error { return src.err }

func (src *iceSource) current() ([]webrtc.ICEServer, error) {
	if src.err != nil {
		return nil, src.err
	}
	if src.turn == nil {
		return src.servers, nil
	}
	return src.turn.Apply(src.servers)
}

func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	servers, err := s.ice.current()
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	// Credentials are minted per request.
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}
