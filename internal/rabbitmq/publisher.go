package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/pkg/model"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher mirrors committed ledger events to a RabbitMQ topic exchange. The
// routing key is the event type, e.g. "product.sold".
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher connects to RabbitMQ and declares the durable topic exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger}, nil
}

// Handle publishes ev; it is subscribed to the event bus.
func (p *Publisher) Handle(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.Publish(ctx, ev)
}

// Publish sends ev inside a canonical envelope.
func (p *Publisher) Publish(ctx context.Context, ev model.Event) error {
	key := ev.EventType()
	env, err := model.NewEnvelope(p.exchange+"."+key, ev)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("event_type", key), zap.Error(err))
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("event_type", key), zap.Error(err))
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID.String(),
			CorrelationId: env.CorrelationID.String(),
			Timestamp:     env.Timestamp,
			Type:          key,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("event_type", key),
			zap.Uint64("seq", env.Seq),
			zap.Error(err),
		)
		metrics.IncRabbitMessage(key, "error")
		return err
	}

	p.logger.Debug("rabbitmq.published", zap.String("event_type", key), zap.Uint64("seq", env.Seq))
	metrics.IncRabbitMessage(key, "ok")
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
