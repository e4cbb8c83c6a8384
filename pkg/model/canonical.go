package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope.
// Every ledger event leaving the process (NATS, RabbitMQ, websocket feed) uses this format.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Account       string          `json:"account,omitempty"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Seq           uint64          `json:"seq,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// EnvelopeVersion is bumped whenever a payload changes shape.
const EnvelopeVersion = "1.0.0"

// NewEnvelope wraps ev for publication under topic.
func NewEnvelope(topic string, ev Event) (*Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Account:       ev.Account(),
		Topic:         topic,
		EventType:     ev.EventType(),
		Version:       EnvelopeVersion,
		Seq:           ev.Sequence(),
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}, nil
}

// Topic builds the subject for an event type under prefix, e.g. "evt.marketplace.product.sold.v1".
func Topic(prefix, eventType string) string {
	return prefix + "." + eventType + ".v1"
}
