package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"purpleair_status/logger"
	"purpleair_status/models"
	"purpleair_status/status"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publishTimeout bounds the wait for each broker acknowledgement
const publishTimeout = 5 * time.Second

// Broker is the part of the paho client the publisher needs
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is one outgoing MQTT message
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// StatusMessage is the retained per-sensor payload
type StatusMessage struct {
	RunID       string       `json:"run_id"`
	SensorIndex int          `json:"sensor_index"`
	Name        string       `json:"name"`
	Kind        status.Kind  `json:"kind"`
	Label       string       `json:"status"`
	Color       status.Color `json:"color"`
	LastSeen    *int64       `json:"last_seen,omitempty"`
	Confidence  *int         `json:"confidence,omitempty"`
	PM25        *float64     `json:"pm2.5,omitempty"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// SummaryMessage is the per-refresh summary payload
type SummaryMessage struct {
	RunID      string              `json:"run_id"`
	FetchedAt  time.Time           `json:"fetched_at"`
	DurationMs int64               `json:"duration_ms"`
	Sensors    int                 `json:"sensors"`
	Counts     map[status.Kind]int `json:"counts"`
}

// Publisher publishes snapshots to topics under a prefix
type Publisher struct {
	broker Broker
	prefix string
	qos    byte
}

// NewPublisher creates a publisher on a connected broker
func NewPublisher(broker Broker, prefix string, qos byte) *Publisher {
	return &Publisher{broker: broker, prefix: prefix, qos: qos}
}

// Name identifies the publisher in logs
func (p *Publisher) Name() string { return "mqtt" }

// StatusTopic returns the retained status topic of a sensor
func (p *Publisher) StatusTopic(sensorIndex int) string {
	return p.prefix + "/" + strconv.Itoa(sensorIndex) + "/status"
}

// SummaryTopic returns the summary topic
func (p *Publisher) SummaryTopic() string {
	return p.prefix + "/summary"
}

// Messages builds the messages for one snapshot, sensors first in snapshot
// order, summary last
func (p *Publisher) Messages(snapshot *models.Snapshot) ([]Message, error) {
	msgs := make([]Message, 0, len(snapshot.Readings)+1)
	for _, r := range snapshot.Readings {
		payload, err := json.Marshal(StatusMessage{
			RunID:       snapshot.ID,
			SensorIndex: r.SensorIndex,
			Name:        r.Name,
			Kind:        r.Status,
			Label:       r.Label,
			Color:       r.Color,
			LastSeen:    r.LastSeen,
			Confidence:  r.Confidence,
			PM25:        r.PM25,
			FetchedAt:   snapshot.FetchedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status of sensor %d: %w", r.SensorIndex, err)
		}
		msgs = append(msgs, Message{Topic: p.StatusTopic(r.SensorIndex), Payload: payload, Retained: true})
	}

	summary, err := json.Marshal(SummaryMessage{
		RunID:      snapshot.ID,
		FetchedAt:  snapshot.FetchedAt,
		DurationMs: snapshot.Duration.Milliseconds(),
		Sensors:    len(snapshot.Readings),
		Counts:     snapshot.Counts(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	msgs = append(msgs, Message{Topic: p.SummaryTopic(), Payload: summary})

	return msgs, nil
}

// Consume publishes every message of the snapshot. A failed message is
// logged and the rest are still sent; the first error is returned.
func (p *Publisher) Consume(ctx context.Context, snapshot *models.Snapshot) error {
	msgs, err := p.Messages(snapshot)
	if err != nil {
		return err
	}

	var firstErr error
	sent := 0
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		token := p.broker.Publish(m.Topic, p.qos, m.Retained, m.Payload)
		if !token.WaitTimeout(publishTimeout) {
			err = fmt.Errorf("publish to %s timed out", m.Topic)
		} else {
			err = token.Error()
		}
		if err != nil {
			logger.Warnf("MQTT: failed to publish %s: %v\n", m.Topic, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	logger.Debugf("MQTT: published %d/%d messages for run %s\n", sent, len(msgs), snapshot.ID)
	return firstErr
}
