package dashboard

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"purpleair_status/models"
	"purpleair_status/status"
)

// Columns are the table headers, in display order
var Columns = []string{
	"Status", "Sensor ID", "Name", "Mins Ago", "Confidence (%)",
	"WiFi (RSSI)", "Uptime (min)", "PM2.5", "PM2.5 (60m avg)",
	"Temp (°F)", "Model", "Lat", "Lon",
}

// Row is one table line
type Row struct {
	Status       string       `json:"status"`
	SensorID     int          `json:"sensor_id"`
	Name         string       `json:"name"`
	MinsAgo      *float64     `json:"mins_ago"`
	Confidence   *int         `json:"confidence"`
	RSSI         *int         `json:"rssi"`
	Uptime       *int64       `json:"uptime"`
	PM25         *float64     `json:"pm2.5"`
	PM25Hour     *float64     `json:"pm2.5_60minute"`
	TemperatureF *float64     `json:"temperature_f"`
	Model        *string      `json:"model"`
	Latitude     *float64     `json:"latitude"`
	Longitude    *float64     `json:"longitude"`
	Kind         status.Kind  `json:"kind"`
	Color        status.Color `json:"color"`
}

// Table builds the display rows for a snapshot, worst health first.
// Rows of equal severity keep their configured order.
func Table(snapshot *models.Snapshot, now time.Time) []Row {
	if snapshot == nil {
		return []Row{}
	}

	rows := make([]Row, 0, len(snapshot.Readings))
	for _, r := range snapshot.Readings {
		row := Row{
			Status:       r.Label,
			SensorID:     r.SensorIndex,
			Name:         r.Name,
			Confidence:   r.Confidence,
			RSSI:         r.RSSI,
			Uptime:       r.Uptime,
			PM25:         r.PM25,
			PM25Hour:     r.PM25Hour,
			TemperatureF: r.TemperatureA,
			Model:        r.Model,
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			Kind:         r.Status,
			Color:        r.Color,
		}
		if r.LastSeen != nil {
			mins := float64(now.Unix()-*r.LastSeen) / 60
			row.MinsAgo = &mins
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return status.Severity(rows[i].Kind) < status.Severity(rows[j].Kind)
	})

	return rows
}

// Cells formats the row for display, in Columns order. Missing values are empty.
func (r Row) Cells() []string {
	return []string{
		r.Status,
		strconv.Itoa(r.SensorID),
		r.Name,
		formatFloat(r.MinsAgo, "%.1f"),
		formatInt(r.Confidence, "%d"),
		formatInt(r.RSSI, "%d dBm"),
		formatInt64(r.Uptime, "%d"),
		formatFloat(r.PM25, "%.1f"),
		formatFloat(r.PM25Hour, "%.1f"),
		formatFloat(r.TemperatureF, "%.0f"),
		formatString(r.Model),
		formatFloat(r.Latitude, "%.4f"),
		formatFloat(r.Longitude, "%.4f"),
	}
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func formatInt(v *int, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func formatInt64(v *int64, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
