package domain

import (
	"encoding/json"
	"time"
)

const (
	// MaxAttempts bounds how often the relay retries a single event before parking it.
	MaxAttempts = 10

	TopicOrderEvents = "order_events"

	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

type OutboxEvent struct {
	ID            int64             `db:"id"`
	AggregateType string            `db:"aggregate_type"`
	AggregateID   string            `db:"aggregate_id"`
	EventType     string            `db:"event_type"`
	Payload       json.RawMessage   `db:"payload"`
	Headers       map[string]string `db:"headers"`
	Topic         string            `db:"topic"`
	CreatedAt     time.Time         `db:"created_at"`
	PublishedAt   *time.Time        `db:"published_at"`
	Attempts      int64             `db:"attempts"`
	LastError     *string           `db:"last_error"`
}

// Envelope is the wire shape of every relayed event. EventID is the outbox row id, set by the relay.
type Envelope struct {
	EventID int64           `json:"event_id,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Event: eventType, Payload: raw})
}

// DecodeEnvelope is the consumer side of NewEnvelope: it unwraps the envelope and decodes its
// payload into out.
func DecodeEnvelope(raw []byte, out any) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, err
	}

	if out != nil && len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, out); err != nil {
			return envelope, err
		}
	}

	return envelope, nil
}
