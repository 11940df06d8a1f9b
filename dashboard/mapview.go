package dashboard

import (
	"purpleair_status/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MapLayer is everything the map view needs to draw one frame
type MapLayer struct {
	Features     *geojson.FeatureCollection `json:"features"`
	View         ViewState                  `json:"view"`
	MarkerRadius int                        `json:"marker_radius"`
	// Empty is true when there are readings but none can be placed
	Empty bool `json:"empty"`
}

// Located returns the readings that have both coordinates
func Located(snapshot *models.Snapshot) []models.SensorReading {
	if snapshot == nil {
		return nil
	}
	var out []models.SensorReading
	for _, r := range snapshot.Readings {
		if r.HasLocation() {
			out = append(out, r)
		}
	}
	return out
}

// Features builds one colored point per located reading
func Features(snapshot *models.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range Located(snapshot) {
		f := geojson.NewFeature(orb.Point{*r.Longitude, *r.Latitude})
		f.ID = r.SensorIndex
		f.Properties["sensor_index"] = r.SensorIndex
		f.Properties["name"] = r.Name
		f.Properties["status"] = r.Label
		f.Properties["kind"] = string(r.Status)
		f.Properties["color"] = r.Color
		fc.Append(f)
	}
	return fc
}

// BuildMapLayer combines the current snapshot and camera
func BuildMapLayer(snapshot *models.Snapshot, view ViewState, markerRadius int) MapLayer {
	fc := Features(snapshot)
	return MapLayer{
		Features:     fc,
		View:         view,
		MarkerRadius: markerRadius,
		Empty:        snapshot != nil && len(snapshot.Readings) > 0 && len(fc.Features) == 0,
	}
}
