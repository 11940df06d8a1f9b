package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"purpleair_status/models"
	"purpleair_status/status"
)

type stubRefresher struct {
	mu      sync.Mutex
	results []*models.Snapshot
	errs    []error
	calls   int
	block   chan struct{}
}

func (s *stubRefresher) Refresh(ctx context.Context) (*models.Snapshot, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return s.results[i], nil
}

type recordingSink struct {
	name string
	got  []*models.Snapshot
	err  error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Consume(ctx context.Context, s *models.Snapshot) error {
	r.got = append(r.got, s)
	return r.err
}

var defaultView = ViewState{Latitude: 37.9577, Longitude: -121.2908, Zoom: 10}

func snapshotOf(id string, readings ...models.SensorReading) *models.Snapshot {
	return &models.Snapshot{ID: id, FetchedAt: time.Unix(1000000000, 0), Readings: readings}
}

func TestStateStartsEmpty(t *testing.T) {
	s := NewState(&stubRefresher{}, defaultView)
	if s.Snapshot() != nil {
		t.Error("expected no snapshot before the first refresh")
	}
	if s.View() != defaultView {
		t.Errorf("expected default view, got %+v", s.View())
	}
	if len(Table(s.Snapshot(), time.Now())) != 0 {
		t.Error("expected empty table")
	}
	if layer := BuildMapLayer(s.Snapshot(), s.View(), 200); layer.Empty || len(layer.Features.Features) != 0 {
		t.Errorf("expected empty map without warning, got %+v", layer)
	}
}

func TestRefreshReplacesSnapshotWholesale(t *testing.T) {
	first := snapshotOf("a", models.SensorReading{SensorIndex: 1})
	second := snapshotOf("b", models.SensorReading{SensorIndex: 2}, models.SensorReading{SensorIndex: 3})
	sink := &recordingSink{name: "history"}
	s := NewState(&stubRefresher{results: []*models.Snapshot{first, second}}, defaultView, sink)

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	held := s.Snapshot()

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if s.Snapshot().ID != "b" || len(s.Snapshot().Readings) != 2 {
		t.Errorf("expected second snapshot, got %+v", s.Snapshot())
	}
	if held.ID != "a" || len(held.Readings) != 1 {
		t.Error("a previously returned snapshot must not change")
	}
	if len(sink.got) != 2 {
		t.Errorf("sink saw %d snapshots, want 2", len(sink.got))
	}
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	first := snapshotOf("a", models.SensorReading{SensorIndex: 1})
	sink := &recordingSink{name: "mqtt"}
	s := NewState(&stubRefresher{
		results: []*models.Snapshot{first, nil},
		errs:    []error{nil, context.DeadlineExceeded},
	}, defaultView, sink)

	s.Refresh(context.Background())
	if _, err := s.Refresh(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	if s.Snapshot() != first {
		t.Error("failed refresh must keep the prior snapshot")
	}
	if len(sink.got) != 1 {
		t.Errorf("sink should only see successful snapshots, saw %d", len(sink.got))
	}
}

func TestSinkErrorsDoNotFailRefresh(t *testing.T) {
	sink := &recordingSink{name: "broken", err: errors.New("broker down")}
	s := NewState(&stubRefresher{results: []*models.Snapshot{snapshotOf("a")}}, defaultView, sink)

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("sink failure leaked into refresh: %v", err)
	}
	if s.Snapshot() == nil {
		t.Error("snapshot should be current despite sink failure")
	}
}

func TestConcurrentRefreshIsRejected(t *testing.T) {
	block := make(chan struct{})
	ref := &stubRefresher{results: []*models.Snapshot{snapshotOf("a")}, block: block}
	s := NewState(ref, defaultView)

	done := make(chan error)
	go func() {
		_, err := s.Refresh(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Refreshing() {
		if time.Now().After(deadline) {
			t.Fatal("refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("expected ErrRefreshInProgress, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if ref.calls != 1 {
		t.Errorf("expected one refresh call, got %d", ref.calls)
	}
}

func TestViewPersistsUntilReset(t *testing.T) {
	s := NewState(&stubRefresher{results: []*models.Snapshot{snapshotOf("a")}}, defaultView)

	moved := ViewState{Latitude: 38.5, Longitude: -121.5, Zoom: 12, Pitch: 30}
	if err := s.SetView(moved); err != nil {
		t.Fatalf("SetView: %v", err)
	}

	s.Refresh(context.Background())
	if s.View() != moved {
		t.Errorf("refresh must not move the camera, got %+v", s.View())
	}

	if got := s.ResetView(); got != defaultView {
		t.Errorf("ResetView returned %+v", got)
	}
	if s.View() != defaultView {
		t.Errorf("expected default view after reset, got %+v", s.View())
	}
}

func TestSetViewRejectsInvalidCamera(t *testing.T) {
	s := NewState(&stubRefresher{}, defaultView)
	bad := []ViewState{
		{Latitude: 91},
		{Longitude: -181},
		{Zoom: 30},
		{Pitch: 90},
	}
	for _, v := range bad {
		if err := s.SetView(v); err == nil {
			t.Errorf("expected error for %+v", v)
		}
	}
	if s.View() != defaultView {
		t.Error("rejected camera must not be applied")
	}
}

func TestMapWarnsWhenNothingIsLocated(t *testing.T) {
	snap := snapshotOf("a", models.SensorReading{SensorIndex: 1, Status: status.Online})
	layer := BuildMapLayer(snap, defaultView, 200)
	if !layer.Empty {
		t.Error("expected the empty-map notice when no reading has coordinates")
	}
}
