package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauges(t *testing.T) {
	m := New()

	m.SetTransportConnected(true)
	m.ObserveMessage("telemetry", "accepted")
	m.ObserveMessage("telemetry", "accepted")
	m.ObserveMessage("telemetry", "out_of_range")
	m.ObservePolicyDecision("skip", "CooldownActive")
	m.ObserveCommand("ON", "published", 2)
	m.ObserveCommand("FLOOD", "invalid", 0)
	m.ObserveAck("executed")
	m.SetPendingCommands(3)
	m.ObserveDeviceTransition("offline")
	m.IncIngressDropped()

	if got := testutil.ToFloat64(m.transportConnected); got != 1 {
		t.Errorf("transport_connected = %v", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("telemetry", "accepted")); got != 2 {
		t.Errorf("messages accepted = %v", got)
	}
	if got := testutil.ToFloat64(m.policyDecisions.WithLabelValues("skip", "CooldownActive")); got != 1 {
		t.Errorf("policy decisions = %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("FLOOD", "invalid")); got != 1 {
		t.Errorf("invalid commands = %v", got)
	}
	if got := testutil.ToFloat64(m.pendingCommands); got != 3 {
		t.Errorf("pending = %v", got)
	}
	if got := testutil.ToFloat64(m.ingressDropped); got != 1 {
		t.Errorf("dropped = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetTransportConnected(false)
	m.ObserveMessage("status", "accepted")
	m.ObservePolicyDecision("trigger", "BelowThreshold")
	m.ObserveCommand("ON", "failed", 3)
	m.ObserveAck("unmatched")
	m.SetPendingCommands(0)
	m.ObserveDeviceTransition("online")
	m.IncIngressDropped()
	m.ObserveHTTPRequest(http.MethodGet, "/healthz", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveCommand("ON", "published", 1)
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", 200, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`plantd_commands_total{command="ON",result="published"} 1`,
		`plantd_http_request_duration_seconds_count{method="GET",route="/readyz",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
