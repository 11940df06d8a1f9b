package models

import (
	"time"

	"purpleair_status/status"
)

// SensorReading is one sensor's classified record for a single refresh.
// It is never modified after the refresh that created it.
type SensorReading struct {
	SensorIndex  int      `json:"sensor_index"`
	Name         string   `json:"name"`
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

	Status status.Kind  `json:"status_kind"`
	Label  string       `json:"status"`
	Color  status.Color `json:"color"`

	// FailureReason is set only for fetch errors
	FailureReason status.FailureReason `json:"failure_reason,omitempty"`

	// Raw is the unmodified record returned by the API
	Raw map[string]any `json:"-"`
}

// HasLocation reports whether the reading can be placed on the map
func (r SensorReading) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Snapshot is the complete result of one refresh
type Snapshot struct {
	ID        string          `json:"id"`
	FetchedAt time.Time       `json:"fetched_at"`
	Duration  time.Duration   `json:"duration"`
	Readings  []SensorReading `json:"readings"`
}

// Counts tallies readings per health category
func (s *Snapshot) Counts() map[status.Kind]int {
	counts := map[status.Kind]int{
		status.Offline:       0,
		status.LowConfidence: 0,
		status.Online:        0,
		status.FetchError:    0,
	}
	if s == nil {
		return counts
	}
	for _, r := range s.Readings {
		counts[r.Status]++
	}
	return counts
}

// RawRecords returns the unmodified records of the snapshot, each tagged
// with its sensor index, status label and color the way they were displayed
func (s *Snapshot) RawRecords() []map[string]any {
	if s == nil {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(s.Readings))
	for _, r := range s.Readings {
		rec := make(map[string]any, len(r.Raw)+4)
		for k, v := range r.Raw {
			rec[k] = v
		}
		rec["sensor_index"] = r.SensorIndex
		rec["status"] = r.Label
		rec["color"] = r.Color
		if _, ok := rec["name"]; !ok {
			rec["name"] = r.Name
		}
		out = append(out, rec)
	}
	return out
}
