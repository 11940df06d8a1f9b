package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"purpleair_status/models"
	"purpleair_status/status"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func snapshot() *models.Snapshot {
	return &models.Snapshot{
		ID:        "run-1",
		FetchedAt: time.Unix(1760000000, 0),
		Duration:  1500 * time.Millisecond,
		Readings: []models.SensorReading{
			{SensorIndex: 1, Status: status.Online},
			{SensorIndex: 2, Status: status.Online},
			{SensorIndex: 3, Status: status.Offline},
			{SensorIndex: 4, Status: status.FetchError, FailureReason: status.AuthFailure},
			{SensorIndex: 5, Status: status.FetchError, FailureReason: status.AuthFailure},
			{SensorIndex: 6, Status: status.FetchError, FailureReason: status.TransportFailure},
		},
	}
}

func TestConsumeSetsGauges(t *testing.T) {
	m := New()
	if err := m.Consume(context.Background(), snapshot()); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	cases := map[status.Kind]float64{
		status.Online:        2,
		status.Offline:       1,
		status.LowConfidence: 0,
		status.FetchError:    3,
	}
	for kind, want := range cases {
		if got := testutil.ToFloat64(m.sensors.WithLabelValues(string(kind))); got != want {
			t.Errorf("sensors{%s} = %v, want %v", kind, got, want)
		}
	}

	if got := testutil.ToFloat64(m.fetchFailures.WithLabelValues(string(status.AuthFailure))); got != 2 {
		t.Errorf("auth failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastRefresh); got != 1760000000 {
		t.Errorf("last refresh = %v", got)
	}
}

func TestConsumeReplacesGaugesAndAccumulatesCounters(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.Consume(ctx, snapshot())

	second := &models.Snapshot{
		ID:        "run-2",
		FetchedAt: time.Unix(1760000600, 0),
		Readings: []models.SensorReading{
			{SensorIndex: 4, Status: status.FetchError, FailureReason: status.AuthFailure},
		},
	}
	m.Consume(ctx, second)

	if got := testutil.ToFloat64(m.sensors.WithLabelValues(string(status.Online))); got != 0 {
		t.Errorf("online gauge should reset to 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.fetchFailures.WithLabelValues(string(status.AuthFailure))); got != 3 {
		t.Errorf("auth failures = %v, want 3", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Consume(context.Background(), snapshot())
	m.RefreshFailed(time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`purpleair_sensors{category="online"} 2`,
		`purpleair_fetch_failures_total{reason="transport"} 1`,
		"purpleair_refresh_duration_seconds_count 2",
		"purpleair_refresh_errors_total 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	if err := m.Consume(context.Background(), snapshot()); err != nil {
		t.Fatal(err)
	}
	m.RefreshFailed(time.Second)
}
