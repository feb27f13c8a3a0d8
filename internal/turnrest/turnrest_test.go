package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func fixedGenerator(t *testing.T, ttl time.Duration) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		SharedSecret:   "shared-secret",
		TTL:            ttl,
		UsernamePrefix: "aero",
		Now:            func() time.Time { return time.Unix(1_700_000_000, 0).UTC() },
		Nonce:          func() string { return "nonce123" },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func expectedCredential(t *testing.T, secret, username string) string {
	t.Helper()
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestCredentials_Deterministic(t *testing.T) {
	g := fixedGenerator(t, time.Hour)

	creds, err := g.Credentials("session123")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.Expires.Unix() != 1_700_003_600 {
		t.Fatalf("Expires=%d, want %d", creds.Expires.Unix(), 1_700_003_600)
	}
	if want := "1700003600:aero:session123"; creds.Username != want {
		t.Fatalf("Username=%q, want %q", creds.Username, want)
	}
	if want := expectedCredential(t, "shared-secret", creds.Username); creds.Credential != want {
		t.Fatalf("Credential=%q, want %q", creds.Credential, want)
	}
	decoded, err := base64.StdEncoding.DecodeString(creds.Credential)
	if err != nil || len(decoded) != sha1.Size {
		t.Fatalf("credential is not a base64 sha1 mac: %v len=%d", err, len(decoded))
	}
}

func TestCredentials_RejectsBadNonce(t *testing.T) {
	g := fixedGenerator(t, time.Minute)
	for _, nonce := range []string{"", "a:b"} {
		if _, err := g.Credentials(nonce); err == nil {
			t.Fatalf("Credentials(%q) expected error", nonce)
		}
	}
}

func TestNewGenerator_Validates(t *testing.T) {
	cases := []Config{
		{TTL: time.Hour, UsernamePrefix: "aero"},
		{SharedSecret: "s", UsernamePrefix: "aero"},
		{SharedSecret: "s", TTL: time.Hour},
		{SharedSecret: "s", TTL: time.Hour, UsernamePrefix: "a:b"},
	}
	for i, cfg := range cases {
		if _, err := NewGenerator(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestApply_OnlyTURNEntries(t *testing.T) {
	g := fixedGenerator(t, time.Hour)
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"TURN:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"}},
	}

	out, err := g.Apply(servers)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len=%d", len(out))
	}
	if out[0].Username != "" || out[0].Credential != nil {
		t.Fatalf("stun entry got credentials: %#v", out[0])
	}
	if out[1].Username != "1700003600:aero:nonce123" {
		t.Fatalf("turn username=%q", out[1].Username)
	}
	if out[1].Credential != expectedCredential(t, "shared-secret", out[1].Username) {
		t.Fatalf("turn credential=%v", out[1].Credential)
	}
	if servers[1].Username != "" {
		t.Fatalf("Apply mutated its input")
	}
}

func TestApply_EmptyStaysEmpty(t *testing.T) {
	g := fixedGenerator(t, time.Hour)
	out, err := g.Apply([]webrtc.ICEServer{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("out=%#v, want empty non-nil", out)
	}
}
