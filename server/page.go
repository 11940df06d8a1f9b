package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"purpleair_status/dashboard"
	"purpleair_status/logger"
	"purpleair_status/status"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"rgba": rgba,
}).ParseFS(templateFS, "templates/index.html"))

type pageRow struct {
	Cells []string
	Color status.Color
}

type pageData struct {
	Columns      []string
	Rows         []pageRow
	Counts       map[string]int
	HasSnapshot  bool
	FetchedAt    string
	Refreshing   bool
	MapEmpty     bool
	Error        string
	RawJSON      string
	HistoryOn    bool
	MarkerRadius int
}

func rgba(c status.Color) template.CSS {
	return template.CSS(fmt.Sprintf("rgba(%d,%d,%d,%.2f)", c[0], c[1], c[2], float64(c[3])/255))
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	rows := dashboard.Table(snap, s.now())

	data := pageData{
		Columns:      dashboard.Columns,
		Rows:         make([]pageRow, 0, len(rows)),
		Counts:       make(map[string]int),
		HasSnapshot:  snap != nil,
		Refreshing:   s.state.Refreshing(),
		MapEmpty:     dashboard.BuildMapLayer(snap, s.state.View(), s.markerRadius).Empty,
		Error:        r.URL.Query().Get("error"),
		HistoryOn:    s.history != nil,
		MarkerRadius: s.markerRadius,
	}
	for kind, n := range snap.Counts() {
		data.Counts[string(kind)] = n
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, pageRow{Cells: row.Cells(), Color: row.Color})
	}
	if snap != nil {
		data.FetchedAt = snap.FetchedAt.Local().Format(time.DateTime)
		raw, err := json.MarshalIndent(snap.RawRecords(), "", "  ")
		if err != nil {
			logger.Errorf("failed to encode raw readings: %v\n", err)
		}
		data.RawJSON = string(raw)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		logger.Errorf("failed to render page: %v\n", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
