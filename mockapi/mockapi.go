// Package mockapi serves fake PurpleAir sensor records for local runs and tests.
package mockapi

import (
	"encoding/json"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// BasePath is where sensors are served, mirroring the real API
const BasePath = "/v1/sensors/"

// Profile selects what kind of record a sensor returns
type Profile string

const (
	Healthy       Profile = "healthy"
	Stale         Profile = "stale"
	LowConfidence Profile = "low_confidence"
	Unlocated     Profile = "unlocated"
	NeverSeen     Profile = "never_seen"
	Forbidden     Profile = "forbidden"
	Missing       Profile = "missing"
	ServerError   Profile = "server_error"
)

// weighted rotation used when a sensor has no explicit profile
var defaultRotation = []Profile{
	Healthy, Healthy, Healthy, Healthy, Healthy, Healthy,
	LowConfidence, LowConfidence, Stale, Unlocated, NeverSeen, Missing,
}

// Server is a fake PurpleAir API
type Server struct {
	apiKey   string
	now      func() time.Time
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[int]Profile
	requests int
}

// New creates a fake API that accepts apiKey. An empty apiKey accepts any key.
func New(apiKey string, seed int64) *Server {
	return &Server{
		apiKey:   apiKey,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(seed)),
		profiles: map[int]Profile{},
	}
}

// SetProfile pins the behavior of one sensor
func (s *Server) SetProfile(sensorIndex int, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[sensorIndex] = p
}

// SetClock overrides the time source used for last_seen
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Requests returns the number of sensor requests served
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Handler returns the HTTP handler for the fake API
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(BasePath+"{index}", s.getSensor)
	return r
}

func (s *Server) profileFor(sensorIndex int) Profile {
	if p, ok := s.profiles[sensorIndex]; ok {
		return p
	}
	return defaultRotation[sensorIndex%len(defaultRotation)]
}

func (s *Server) getSensor(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
		writeError(w, http.StatusForbidden, "ApiKeyInvalidError", "The provided api_key was not valid.")
		return
	}

	sensorIndex, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidSensorIndex", "sensor_index must be an integer")
		return
	}

	s.mu.Lock()
	s.requests++
	profile := s.profileFor(sensorIndex)
	record := s.generate(sensorIndex, profile)
	s.mu.Unlock()

	switch profile {
	case Forbidden:
		writeError(w, http.StatusForbidden, "ApiKeyInvalidError", "The provided api_key was not valid.")
		return
	case Missing:
		writeError(w, http.StatusNotFound, "NotFoundError", "Cannot find a sensor with the provided parameters.")
		return
	case ServerError:
		writeError(w, http.StatusInternalServerError, "InternalError", "Internal server error.")
		return
	}

	record = filterFields(record, r.URL.Query().Get("fields"))
	record["sensor_index"] = sensorIndex

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"api_version":     "V1.0.11-0.0.58",
		"time_stamp":      s.now().Unix(),
		"data_time_stamp": s.now().Unix(),
		"sensor":          record,
	})
}

// generate builds a plausible record. Callers hold s.mu.
func (s *Server) generate(sensorIndex int, profile Profile) map[string]any {
	now := s.now().UTC()

	// Simulate PM2.5 with a daily cycle + noise, like a real outdoor sensor
	hourAngle := float64(now.Hour()) * math.Pi / 12
	pm := math.Max(0, 8.0+5.0*math.Sin(hourAngle-math.Pi/2)+s.rng.Float64()*4-2)

	record := map[string]any{
		"name":           "Mock Sensor " + strconv.Itoa(sensorIndex),
		"model":          "PA-II",
		"hardware":       "2.0+BME280+PMSX003-B+PMSX003-A",
		"last_seen":      now.Add(-time.Duration(s.rng.Intn(240)) * time.Second).Unix(),
		"confidence":     90 + s.rng.Intn(11),
		"rssi":           -40 - s.rng.Intn(45),
		"uptime":         s.rng.Intn(200000),
		"latitude":       37.9577 + (s.rng.Float64()-0.5)*0.3,
		"longitude":      -121.2908 + (s.rng.Float64()-0.5)*0.3,
		"pm2.5":          math.Round(pm*10) / 10,
		"pm2.5_60minute": math.Round(pm*9.5) / 10,
		"temperature_a":  60 + s.rng.Intn(30),
	}

	switch profile {
	case Stale:
		record["last_seen"] = now.Add(-time.Duration(1+s.rng.Intn(72)) * time.Hour).Unix()
	case LowConfidence:
		record["confidence"] = s.rng.Intn(75)
	case Unlocated:
		delete(record, "latitude")
		delete(record, "longitude")
	case NeverSeen:
		delete(record, "last_seen")
	}

	return record
}

func filterFields(record map[string]any, fields string) map[string]any {
	if fields == "" {
		return record
	}
	out := make(map[string]any, len(record))
	for _, f := range strings.Split(fields, ",") {
		f = strings.TrimSpace(f)
		if v, ok := record[f]; ok {
			out[f] = v
		}
	}
	return out
}

func writeError(w http.ResponseWriter, code int, errType, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"api_version": "V1.0.11-0.0.58",
		"error":       errType,
		"description": description,
	})
}
