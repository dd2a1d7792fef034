package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.IncModeTransition("3d", "2d")
	m.IncGuardRejection()
	m.IncCameraFlight("enter_2d")
	m.ObserveDataFetch("building", "ok", 40*time.Millisecond)
	m.IncIngestRun()
	m.ObserveIngestRunDuration(3 * time.Second)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, "wayfinder_http_requests_total{method=\"GET\",path=\"/readyz\",status=\"200\"} 1") {
		t.Fatalf("expected labeled request counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "wayfinder_view_mode_transitions_total{from=\"3d\",to=\"2d\"} 1") {
		t.Fatalf("expected mode transition counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "wayfinder_view_mode_guard_rejections_total 1") {
		t.Fatalf("expected guard rejection counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "wayfinder_camera_flights_total{reason=\"enter_2d\"} 1") {
		t.Fatalf("expected camera flight counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "wayfinder_map_data_fetches_total{kind=\"building\",outcome=\"ok\"} 1") {
		t.Fatalf("expected data fetch counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "wayfinder_ingest_runs_total 1") {
		t.Fatalf("expected ingest runs counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "wayfinder_ingest_run_duration_seconds_count 1") {
		t.Fatalf("expected ingest run duration histogram to have one observation; body=%s", body)
	}
}
