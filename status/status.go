// Package status classifies sensor health from freshness and data confidence.
package status

import (
	"fmt"
)

// Kind is the health category of a sensor
type Kind string

const (
	Offline       Kind = "offline"
	LowConfidence Kind = "low_confidence"
	Online        Kind = "online"
	FetchError    Kind = "fetch_error"
)

// Color is an RGBA tuple used for map markers
type Color [4]uint8

// Marker colors, one per health category. Fetch errors share the offline color.
var (
	OfflineColor       = Color{255, 0, 0, 160}
	LowConfidenceColor = Color{255, 255, 0, 160}
	OnlineColor        = Color{0, 255, 0, 160}
)

// Thresholds encode the operational policy for classification
type Thresholds struct {
	// StaleAfterSeconds: a sensor whose last report is older than this is offline
	StaleAfterSeconds int64
	// MinConfidence: readings below this percentage are low confidence
	MinConfidence int
}

// DefaultThresholds returns the reference policy: 10 minutes, 75%
func DefaultThresholds() Thresholds {
	return Thresholds{StaleAfterSeconds: 600, MinConfidence: 75}
}

// Result is the outcome of classifying one sensor
type Result struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
	Color Color  `json:"color"`
}

// ColorOf maps a health category to its marker color
func ColorOf(kind Kind) Color {
	switch kind {
	case Online:
		return OnlineColor
	case LowConfidence:
		return LowConfidenceColor
	default:
		return OfflineColor
	}
}

// Severity ranks kinds so the worst health sorts first
func Severity(kind Kind) int {
	switch kind {
	case Offline, FetchError:
		return 0
	case LowConfidence:
		return 1
	case Online:
		return 2
	default:
		return 3
	}
}

// Classify derives a status from a successfully fetched sensor record.
// now and lastSeen are Unix seconds. A nil lastSeen means the sensor has never
// reported and is offline; a nil confidence counts as 0.
func Classify(now int64, lastSeen *int64, confidence *int, th Thresholds) Result {
	if lastSeen == nil {
		return newResult(Offline, "❌ Offline (never seen)")
	}

	age := now - *lastSeen
	if age > th.StaleAfterSeconds {
		return newResult(Offline, fmt.Sprintf("❌ Offline (%d hr ago)", age/3600))
	}

	conf := 0
	if confidence != nil {
		conf = *confidence
	}
	if conf < th.MinConfidence {
		return newResult(LowConfidence, fmt.Sprintf("⚠️ Low Confidence (%d%%)", conf))
	}

	return newResult(Online, "✅ Online")
}

func newResult(kind Kind, label string) Result {
	return Result{Kind: kind, Label: label, Color: ColorOf(kind)}
}
