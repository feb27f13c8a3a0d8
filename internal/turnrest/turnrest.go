// Package turnrest mints short-lived coturn credentials (use-auth-secret) for
// the TURN entries the relay hands to call clients.
//
//	username   = <unix_expiry>:<prefix>:<nonce>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// See https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	// Now and Nonce are replaced in tests.
	Now   func() time.Time
	Nonce func() string
}

type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string
	now    func() time.Time
	nonce  func() string
}

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTL < time.Second {
		return nil, errors.New("ttl must be at least one second")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("username prefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("username prefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Nonce == nil {
		cfg.Nonce = uuid.NewString
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.UsernamePrefix,
		now:    cfg.Now,
		nonce:  cfg.Nonce,
	}, nil
}

// Credentials signs a username for nonce, which must not contain ':'.
func (g *Generator) Credentials(nonce string) (Credentials, error) {
	if nonce == "" || strings.Contains(nonce, ":") {
		return Credentials{}, fmt.Errorf("invalid nonce %q", nonce)
	}
	expires := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), g.prefix, nonce)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		Expires:    expires,
	}, nil
}

// Apply returns a copy of servers where every entry with a turn: or turns:
// URL carries a fresh credential. STUN-only entries are left untouched.
func (g *Generator) Apply(servers []webrtc.ICEServer) ([]webrtc.ICEServer, error) {
	creds, err := g.Credentials(g.nonce())
	if err != nil {
		return nil, err
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		out[i].URLs = append([]string(nil), server.URLs...)
		if HasTURNURL(server) {
			out[i].Username = creds.Username
			out[i].Credential = creds.Credential
		}
	}
	return out, nil
}

func HasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		u := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
