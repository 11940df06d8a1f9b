package purpleair

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		BaseURL: url + "/v1/sensors/",
		APIKey:  "test-key",
		Fields:  []string{"name", "last_seen", "confidence", "pm2.5"},
		Timeout: 2 * time.Second,
	})
}

func TestFetchSensorDecodesFields(t *testing.T) {
	var gotKey, gotPath, gotFields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"api_version":"V1.0.11","sensor":{"sensor_index":155503,"name":"Lodi Park","last_seen":1700000000,"confidence":98,"pm2.5":4.2,"latitude":38.1,"longitude":-121.3}}`))
	}))
	defer srv.Close()

	sensor, err := newTestClient(srv.URL).FetchSensor(context.Background(), 155503)
	if err != nil {
		t.Fatalf("FetchSensor returned error: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("X-API-Key = %q, want test-key", gotKey)
	}
	if gotPath != "/v1/sensors/155503" {
		t.Errorf("path = %s", gotPath)
	}
	if gotFields != "name,last_seen,confidence,pm2.5" {
		t.Errorf("fields = %s", gotFields)
	}

	if sensor.Name == nil || *sensor.Name != "Lodi Park" {
		t.Errorf("unexpected name: %v", sensor.Name)
	}
	if sensor.LastSeen == nil || *sensor.LastSeen != 1700000000 {
		t.Errorf("unexpected last_seen: %v", sensor.LastSeen)
	}
	if sensor.Confidence == nil || *sensor.Confidence != 98 {
		t.Errorf("unexpected confidence: %v", sensor.Confidence)
	}
	if sensor.PM25 == nil || *sensor.PM25 != 4.2 {
		t.Errorf("unexpected pm2.5: %v", sensor.PM25)
	}
	if sensor.Raw["name"] != "Lodi Park" {
		t.Errorf("raw record missing name: %v", sensor.Raw)
	}
}

func TestFetchSensorToleratesMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sensor":{"name":"bare"}}`))
	}))
	defer srv.Close()

	sensor, err := newTestClient(srv.URL).FetchSensor(context.Background(), 1)
	if err != nil {
		t.Fatalf("missing fields must not be an error: %v", err)
	}
	if sensor.LastSeen != nil || sensor.Confidence != nil || sensor.Latitude != nil {
		t.Errorf("expected absent fields to stay nil: %+v", sensor)
	}
}

func TestFetchSensorWithoutSensorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"api_version":"V1"}`))
	}))
	defer srv.Close()

	sensor, err := newTestClient(srv.URL).FetchSensor(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sensor.Name != nil || len(sensor.Raw) != 0 {
		t.Errorf("expected empty record, got %+v", sensor)
	}
}

func TestFetchSensorStatusErrors(t *testing.T) {
	tests := []struct {
		code         int
		unauthorized bool
		notFound     bool
	}{
		{http.StatusForbidden, true, false},
		{http.StatusNotFound, false, true},
		{http.StatusInternalServerError, false, false},
		{http.StatusTooManyRequests, false, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.code)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FetchSensor(context.Background(), 42)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StatusError, got %T: %v", err, err)
			}
			if se.Code != tt.code || se.SensorIndex != 42 {
				t.Errorf("unexpected error fields: %+v", se)
			}
			if IsUnauthorized(err) != tt.unauthorized {
				t.Errorf("IsUnauthorized = %v", IsUnauthorized(err))
			}
			if IsNotFound(err) != tt.notFound {
				t.Errorf("IsNotFound = %v", IsNotFound(err))
			}
		})
	}
}

func TestFetchSensorTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).FetchSensor(context.Background(), 7)
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError, got %T: %v", err, err)
	}
}

func TestFetchSensorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: 50 * time.Millisecond})
	_, err := client.FetchSensor(context.Background(), 7)
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError on timeout, got %T: %v", err, err)
	}
}

func TestFetchSensorMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchSensor(context.Background(), 7)
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError, got %T: %v", err, err)
	}
}

func TestSensorURLWithoutFields(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "https://api.example/v1/sensors/"})
	if got := c.SensorURL(12); got != "https://api.example/v1/sensors/12" {
		t.Errorf("SensorURL = %s", got)
	}
}
