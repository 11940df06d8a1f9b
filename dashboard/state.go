// Package dashboard owns the application state behind the status UI: the
// current result set, the map camera, and the commands that replace them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"purpleair_status/logger"
	"purpleair_status/models"
)

// ErrRefreshInProgress is returned when a refresh is requested while one runs
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Refresher produces a complete snapshot or an error
type Refresher interface {
	Refresh(ctx context.Context) (*models.Snapshot, error)
}

// Sink receives every snapshot that becomes current
type Sink interface {
	Name() string
	Consume(ctx context.Context, snapshot *models.Snapshot) error
}

// failureRecorder is implemented by sinks that also track failed refreshes
type failureRecorder interface {
	RefreshFailed(duration time.Duration)
}

// ViewState is a map camera position
type ViewState struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
}

// Validate rejects camera positions the map cannot show
func (v ViewState) Validate() error {
	if v.Latitude < -90 || v.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", v.Latitude)
	}
	if v.Longitude < -180 || v.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", v.Longitude)
	}
	if v.Zoom < 0 || v.Zoom > 24 {
		return fmt.Errorf("zoom out of range: %v", v.Zoom)
	}
	if v.Pitch < 0 || v.Pitch > 85 {
		return fmt.Errorf("pitch out of range: %v", v.Pitch)
	}
	return nil
}

// State is the explicit application state. The snapshot and camera are only
// ever replaced as a whole, never mutated in place.
type State struct {
	refresher   Refresher
	defaultView ViewState
	sinks       []Sink

	mu         sync.RWMutex
	snapshot   *models.Snapshot
	view       ViewState
	refreshing atomic.Bool
}

// NewState creates the state with an empty result set and the default camera
func NewState(refresher Refresher, defaultView ViewState, sinks ...Sink) *State {
	return &State{
		refresher:   refresher,
		defaultView: defaultView,
		view:        defaultView,
		sinks:       sinks,
	}
}

// Refresh fetches a new result set and makes it current. On failure the
// previous result set stays in place. Only one refresh runs at a time.
func (s *State) Refresh(ctx context.Context) (*models.Snapshot, error) {
	if !s.refreshing.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshing.Store(false)

	start := time.Now()
	snapshot, err := s.refresher.Refresh(ctx)
	if err != nil {
		logger.LogResult("Refresh", false, err.Error())
		for _, sink := range s.sinks {
			if fr, ok := sink.(failureRecorder); ok {
				fr.RefreshFailed(time.Since(start))
			}
		}
		return nil, err
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	logger.LogResult("Refresh", true, fmt.Sprintf("%d sensors in %v", len(snapshot.Readings), snapshot.Duration))

	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, snapshot); err != nil {
			logger.Warnf("%s: failed to handle snapshot %s: %v\n", sink.Name(), snapshot.ID, err)
		}
	}

	return snapshot, nil
}

// Refreshing reports whether a refresh is running
func (s *State) Refreshing() bool {
	return s.refreshing.Load()
}

// Snapshot returns the current result set, nil before the first refresh
func (s *State) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// View returns the current map camera
func (s *State) View() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// DefaultView returns the camera restored by ResetView
func (s *State) DefaultView() ViewState {
	return s.defaultView
}

// SetView keeps a user-chosen camera until the next reset
func (s *State) SetView(v ViewState) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	return nil
}

// ResetView restores the default camera
func (s *State) ResetView() ViewState {
	s.mu.Lock()
	s.view = s.defaultView
	s.mu.Unlock()
	return s.defaultView
}
