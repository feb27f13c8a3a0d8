package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		raw, wantOrigin, wantHost string
	}{
		{"HTTPS://Example.COM:443", "https://example.com", "example.com"},
		{"http://localhost:5173/", "http://localhost:5173", "localhost:5173"},
		{"http://[::1]:8080", "http://[::1]:8080", "[::1]:8080"},
		{"http://example.com:80", "http://example.com", "example.com"},
		{"null", "null", ""},
	}
	for _, tc := range cases {
		normalized, host, ok := NormalizeHeader(tc.raw)
		if !ok {
			t.Fatalf("%q: expected ok=true", tc.raw)
		}
		if normalized != tc.wantOrigin || host != tc.wantHost {
			t.Fatalf("%q: got (%q, %q), want (%q, %q)", tc.raw, normalized, host, tc.wantOrigin, tc.wantHost)
		}
	}
}

func TestNormalizeHeader_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com?query",
		"https://example.com#frag",
		"https://user@example.com",
		"https://example.com:0",
		"https://example.com:99999",
		"http://::1",
		"example.com",
	} {
		if _, _, ok := NormalizeHeader(raw); ok {
			t.Fatalf("%q: expected ok=false", raw)
		}
	}
}

func TestPolicy_Allows(t *testing.T) {
	cases := []struct {
		name        string
		allowed     []string
		origin      string
		requestHost string
		want        bool
	}{
		{"empty list allows anything", nil, "https://evil.example.com", "relay.example.com", true},
		{"empty list allows missing origin", nil, "", "relay.example.com", true},
		{"exact match", []string{"https://app.example.com"}, "https://APP.example.com:443", "relay.example.com", true},
		{"exact mismatch", []string{"https://app.example.com"}, "https://other.example.com", "relay.example.com", false},
		{"missing origin needs wildcard", []string{"https://app.example.com"}, "", "relay.example.com", false},
		{"wildcard admits missing origin", []string{Any}, "", "relay.example.com", true},
		{"same host ignores scheme", []string{SameHost}, "https://relay.example.com", "relay.example.com:443", true},
		{"same host port mismatch", []string{SameHost}, "http://relay.example.com:8081", "relay.example.com:9000", false},
		{"invalid origin", []string{Any}, "not an origin", "relay.example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewPolicy(tc.allowed).Allows(tc.origin, tc.requestHost); got != tc.want {
				t.Fatalf("Allows=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestPolicy_CheckRequestRejectsDuplicateOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "http://relay.example.com/", nil)
	r.Header.Add("Origin", "https://app.example.com")
	r.Header.Add("Origin", "https://evil.example.com")
	if NewPolicy([]string{Any}).CheckRequest(r) {
		t.Fatalf("expected duplicate Origin headers to be rejected")
	}
}
