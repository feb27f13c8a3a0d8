package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Routed("chat-message")
	m.Dropped(DropReasonTargetNotFound)
	m.Dropped(DropReasonTargetNotFound)
	m.Inc(EventIDCollision)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE aero_call_relay_connections_active gauge",
		"aero_call_relay_connections_active 1",
		"aero_call_relay_connections_total 2",
		`aero_call_relay_envelopes_routed_total{type="chat-message"} 1`,
		`aero_call_relay_envelopes_dropped_total{reason="target_not_found"} 2`,
		`aero_call_relay_events_total{event="id_collision"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.Routed("call-end")
	m.Dropped(DropReasonMalformed)
	m.Inc(EventSlowConsumer)

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.PresenceBroadcast()
	m.PresenceBroadcast()
	if got := testutil.ToFloat64(m.presenceBroadcasts); got != 2 {
		t.Fatalf("presence broadcasts=%v, want 2", got)
	}
	m.Dropped(DropReasonQueueOverflow)
	if got := testutil.ToFloat64(m.dropped.WithLabelValues(DropReasonQueueOverflow)); got != 1 {
		t.Fatalf("queue overflow drops=%v, want 1", got)
	}
}
