package publisher

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/pkg/logger"
	"github.com/Checker-Finance/marketplace/pkg/model"
)

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes canonical ledger envelopes.
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	prefix  string
	service string
}

// New creates a new Publisher with JetStream enabled. prefix is the subject
// root, e.g. "evt.marketplace".
func New(nc *nats.Conn, prefix, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		prefix:  prefix,
		service: service,
	}, nil
}

// Handle publishes ev; it is subscribed to the event bus. Failures are logged
// and counted, the ledger has already committed.
func (p *Publisher) Handle(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.PublishEvent(ctx, ev)
}

// PublishEvent wraps ev in an envelope and publishes it on its versioned subject.
func (p *Publisher) PublishEvent(ctx context.Context, ev model.Event) error {
	subject := model.Topic(p.prefix, ev.EventType())
	env, err := model.NewEnvelope(subject, ev)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", ev.EventType(),
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	return p.PublishEnvelope(ctx, subject, env)
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
// Journaled events carry a Nats-Msg-Id derived from their sequence so that a
// redelivery is dropped by the stream's duplicate window.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msgID := env.ID.String()
	if env.Seq > 0 {
		msgID = p.service + "-" + strconv.FormatUint(env.Seq, 10)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"account":        []string{env.Account},
			nats.MsgIdHdr:    []string{msgID},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"seq", env.Seq,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"seq", env.Seq,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Connected reports whether the NATS connection is up; used by /health.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
