package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"purpleair_status/dashboard"
	"purpleair_status/logger"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		fmt.Fprintln(w, "OK")
		return
	}
	if !s.broker.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "DEGRADED")
		fmt.Fprintln(w, "mqtt: disconnected")
		return
	}
	fmt.Fprintln(w, "OK")
	fmt.Fprintln(w, "mqtt: connected")
}

// tableResponse is the body of GET /api/table
type tableResponse struct {
	Columns    []string        `json:"columns"`
	Rows       []dashboard.Row `json:"rows"`
	RunID      string          `json:"run_id,omitempty"`
	FetchedAt  *time.Time      `json:"fetched_at,omitempty"`
	Refreshing bool            `json:"refreshing"`
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	resp := tableResponse{
		Columns:    dashboard.Columns,
		Rows:       dashboard.Table(snap, s.now()),
		Refreshing: s.state.Refreshing(),
	}
	if snap != nil {
		resp.RunID = snap.ID
		resp.FetchedAt = &snap.FetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) mapLayer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.BuildMapLayer(s.state.Snapshot(), s.state.View(), s.markerRadius))
}

func (s *Server) readings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot().RawRecords())
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.View())
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.state.Refresh(r.Context())
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, dashboard.ErrRefreshInProgress) {
			code = http.StatusConflict
		}
		if wantsJSON(r) {
			writeError(w, code, err)
			return
		}
		http.Redirect(w, r, "/?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":     snap.ID,
			"fetched_at": snap.FetchedAt,
			"sensors":    len(snap.Readings),
			"counts":     snap.Counts(),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) resetView(w http.ResponseWriter, r *http.Request) {
	v := s.state.ResetView()
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) setView(w http.ResponseWriter, r *http.Request) {
	var v dashboard.ViewState
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid view: %w", err))
		return
	}
	if err := s.state.SetView(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state.View())
}

func (s *Server) recentRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := s.history.RecentRuns(r.Context(), limit)
	if err != nil {
		logger.Errorf("history: %v\n", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	run, err := s.history.Run(r.Context(), chi.URLParam(r, "run_id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logger.Errorf("history: %v\n", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) sensorHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "sensor_index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid sensor index: %w", err))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	records, err := s.history.SensorHistory(r.Context(), idx, limit)
	if err != nil {
		logger.Errorf("history: %v\n", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxHistoryLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxHistoryLimit)
	}
	return n, nil
}

// wantsJSON separates API callers from the HTML form buttons
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
