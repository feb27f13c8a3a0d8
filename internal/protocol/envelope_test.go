package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParse_CallRequest(t *testing.T) {
	got, err := Parse([]byte(`{"type":"call-request","targetId":"y1","callKind":"video"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != KindCallRequest || got.TargetID != "y1" || got.CallKind != CallVideo {
		t.Fatalf("unexpected envelope: %#v", got)
	}
}

func TestParse_LegacyCallTypeFoldsIntoCallKind(t *testing.T) {
	got, err := Parse([]byte(`{"type":"call-request","targetId":"y1","callType":"audio"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.CallKind != CallAudio {
		t.Fatalf("callKind=%q, want %q", got.CallKind, CallAudio)
	}
	if got.LegacyCallKind != "" {
		t.Fatalf("legacy field should be cleared, got %q", got.LegacyCallKind)
	}
}

func TestParse_Candidate(t *testing.T) {
	raw := []byte(`{
		"type":"ice-candidate",
		"targetId":"x1",
		"candidate":{
			"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host",
			"sdpMid":"0",
			"sdpMLineIndex":0
		}
	}`)
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Candidate == nil || got.Candidate.SDPMid == nil || *got.Candidate.SDPMid != "0" {
		t.Fatalf("unexpected candidate: %#v", got.Candidate)
	}
}

func TestParse_ToleratesUnknownFields(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"call-end","targetId":"x1","extra":true}`)); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"trailing data", `{"type":"call-end","targetId":"x1"} {}`},
		{"unknown type", `{"type":"hangup","targetId":"x1"}`},
		{"relay-only type", `{"type":"assign-id","targetId":"x1"}`},
		{"missing target", `{"type":"call-end"}`},
		{"bad call kind", `{"type":"call-request","targetId":"x1","callKind":"screen"}`},
		{"offer without sdp", `{"type":"offer-sdp","targetId":"x1"}`},
		{"answer with empty sdp", `{"type":"answer-sdp","targetId":"x1","sdp":{"type":"answer","sdp":""}}`},
		{"candidate missing", `{"type":"ice-candidate","targetId":"x1"}`},
		{"chat without text", `{"type":"chat-message","targetId":"x1"}`},
		{"negative timestamp", `{"type":"chat-message","targetId":"x1","text":"hi","timestamp":-1}`},
		{"oversized target", `{"type":"call-end","targetId":"` + strings.Repeat("a", 129) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("err=%v, want ErrMalformedEnvelope", err)
			}
		})
	}
}

func TestEnvelope_UserListAlwaysCarriesUsers(t *testing.T) {
	b, err := Encode(Envelope{Type: KindUserList})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	users, ok := raw["users"].([]any)
	if !ok || len(users) != 0 {
		t.Fatalf("users=%#v, want empty array (raw %s)", raw["users"], b)
	}
}

func TestEnvelope_OmitsEmptyFields(t *testing.T) {
	b, err := Encode(Envelope{Type: KindCallEnded, SenderID: "x1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got, want := string(b), `{"type":"call-ended","senderId":"x1"}`; got != want {
		t.Fatalf("encoded=%s, want %s", got, want)
	}
}

func TestDecode_AcceptsRelayKinds(t *testing.T) {
	got, err := Decode([]byte(`{"type":"incoming-call","callerId":"x1","callType":"video"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != KindIncomingCall || got.CallerID != "x1" || got.CallKind != CallVideo {
		t.Fatalf("unexpected envelope: %#v", got)
	}
	if _, err := Decode([]byte(`{"id":"x1"}`)); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("err=%v, want ErrMalformedEnvelope", err)
	}
}

func TestSDP_ToPion(t *testing.T) {
	if _, err := (SDP{Type: "pranswer", SDP: "v=0"}).ToPion(); err == nil {
		t.Fatalf("expected error for unsupported sdp type")
	}
	desc, err := (SDP{Type: "offer", SDP: "v=0"}).ToPion()
	if err != nil {
		t.Fatalf("to pion: %v", err)
	}
	if back := SDPFromPion(desc); back.Type != "offer" || back.SDP != "v=0" {
		t.Fatalf("round trip=%#v", back)
	}
}
