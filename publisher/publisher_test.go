package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"purpleair_status/models"
	"purpleair_status/status"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu      sync.Mutex
	msgs    []published
	failFor map[string]error
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failFor[topic]; ok {
		return newToken(err)
	}
	b.msgs = append(b.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newToken(nil)
}

func pint(v int) *int { return &v }

func snapshot() *models.Snapshot {
	return &models.Snapshot{
		ID:        "run-1",
		FetchedAt: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		Duration:  2 * time.Second,
		Readings: []models.SensorReading{
			{SensorIndex: 155503, Name: "Park", Status: status.Online, Label: "✅ Online", Color: status.OnlineColor, Confidence: pint(99)},
			{SensorIndex: 42, Name: "N/A", Status: status.FetchError, Label: "❌ HTTP 404 (Not Found)", Color: status.OfflineColor},
		},
	}
}

func TestConsumePublishesStatusesAndSummary(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, "purpleair", 1)

	if err := p.Consume(context.Background(), snapshot()); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if len(broker.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(broker.msgs))
	}

	first := broker.msgs[0]
	if first.topic != "purpleair/155503/status" || !first.retained || first.qos != 1 {
		t.Errorf("unexpected status message: %+v", first)
	}
	var sm StatusMessage
	if err := json.Unmarshal(first.payload, &sm); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if sm.Label != "✅ Online" || sm.Kind != status.Online || sm.RunID != "run-1" || sm.Color != status.OnlineColor {
		t.Errorf("unexpected status payload: %+v", sm)
	}

	if broker.msgs[1].topic != "purpleair/42/status" {
		t.Errorf("unexpected topic order: %s", broker.msgs[1].topic)
	}

	last := broker.msgs[2]
	if last.topic != "purpleair/summary" || last.retained {
		t.Errorf("unexpected summary message: %+v", last)
	}
	var summary SummaryMessage
	if err := json.Unmarshal(last.payload, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Sensors != 2 || summary.Counts[status.Online] != 1 || summary.Counts[status.FetchError] != 1 || summary.DurationMs != 2000 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestConsumeKeepsPublishingAfterFailure(t *testing.T) {
	boom := errors.New("broker unavailable")
	broker := &fakeBroker{failFor: map[string]error{"pa/155503/status": boom}}
	p := NewPublisher(broker, "pa", 0)

	err := p.Consume(context.Background(), snapshot())
	if !errors.Is(err, boom) {
		t.Fatalf("expected first publish error, got %v", err)
	}
	if len(broker.msgs) != 2 {
		t.Errorf("remaining messages should still be sent, got %d", len(broker.msgs))
	}
}

func TestConsumeStopsOnCancelledContext(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, "pa", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Consume(ctx, snapshot()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(broker.msgs) != 0 {
		t.Errorf("nothing should be published, got %d", len(broker.msgs))
	}
}
