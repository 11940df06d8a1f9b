// Package purpleair fetches single-sensor records from the PurpleAir API.
package purpleair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client calls GET {base}{sensor_index}?fields=... with the X-API-Key header
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	fields     string
}

// ClientConfig holds client configuration
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Fields  []string
	Timeout time.Duration
}

// NewClient creates a new API client. A zero timeout leaves requests bounded
// only by the caller's context.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		fields:     strings.Join(cfg.Fields, ","),
	}
}

// Sensor holds the requested fields of one sensor. Every field is optional.
type Sensor struct {
	Name         *string  `json:"name,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Hardware     *string  `json:"hardware,omitempty"`
	LastSeen     *int64   `json:"last_seen,omitempty"`
	Confidence   *int     `json:"confidence,omitempty"`
	RSSI         *int     `json:"rssi,omitempty"`
	Uptime       *int64   `json:"uptime,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PM25         *float64 `json:"pm2.5,omitempty"`
	PM25Hour     *float64 `json:"pm2.5_60minute,omitempty"`
	TemperatureA *float64 `json:"temperature_a,omitempty"`

	// Raw is the unmodified "sensor" object as returned by the API
	Raw map[string]any `json:"-"`
}

type sensorEnvelope struct {
	Sensor json.RawMessage `json:"sensor"`
}

// StatusError is returned when the API answers with a non-2xx status
type StatusError struct {
	SensorIndex int
	Code        int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sensor %d: unexpected HTTP status %d", e.SensorIndex, e.Code)
}

// RequestError is returned when no usable response was received
type RequestError struct {
	SensorIndex int
	Err         error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("sensor %d: request failed: %v", e.SensorIndex, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a 403 from the API
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// SensorURL builds the request URL for one sensor
func (c *Client) SensorURL(sensorIndex int) string {
	u := c.baseURL + strconv.Itoa(sensorIndex)
	if c.fields != "" {
		u += "?fields=" + c.fields
	}
	return u
}

// FetchSensor fetches one sensor record
func (c *Client) FetchSensor(ctx context.Context, sensorIndex int) (*Sensor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SensorURL(sensorIndex), nil)
	if err != nil {
		return nil, &RequestError{SensorIndex: sensorIndex, Err: err}
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{SensorIndex: sensorIndex, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.CopyN(io.Discard, resp.Body, 512)
		return nil, &StatusError{SensorIndex: sensorIndex, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{SensorIndex: sensorIndex, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	sensor, err := decodeSensor(body)
	if err != nil {
		return nil, &RequestError{SensorIndex: sensorIndex, Err: err}
	}
	return sensor, nil
}

func decodeSensor(body []byte) (*Sensor, error) {
	var env sensorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	sensor := &Sensor{Raw: map[string]any{}}
	// A missing "sensor" object decodes to an empty record
	if len(env.Sensor) == 0 || string(env.Sensor) == "null" {
		return sensor, nil
	}
	if err := json.Unmarshal(env.Sensor, sensor); err != nil {
		return nil, fmt.Errorf("failed to decode sensor: %w", err)
	}
	if err := json.Unmarshal(env.Sensor, &sensor.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode sensor: %w", err)
	}
	return sensor, nil
}
