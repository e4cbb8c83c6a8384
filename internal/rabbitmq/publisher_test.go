package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/pkg/model"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	declared   []string
	published  []published
	declareErr error
	publishErr error
	closed     bool
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if m.declareErr != nil {
		return m.declareErr
	}
	m.declared = append(m.declared, name+":"+kind)
	return nil
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{exchange, key, msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func TestNewPublisher_DeclaresTopicExchange(t *testing.T) {
	ch := &mockChannel{}
	_, err := newPublisher(ch, "marketplace.events", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"marketplace.events:topic"}, ch.declared)
}

func TestNewPublisher_DeclareFailureClosesChannel(t *testing.T) {
	ch := &mockChannel{declareErr: errors.New("access refused")}
	_, err := newPublisher(ch, "marketplace.events", nil)
	require.Error(t, err)
	assert.True(t, ch.closed)
}

func TestPublish_RoutesByEventType(t *testing.T) {
	ch := &mockChannel{}
	p, err := newPublisher(ch, "marketplace.events", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), model.ProductUnlisted{Seq: 4, ProductID: 1, Seller: "0xa11ce"}))
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, "marketplace.events", got.exchange)
	assert.Equal(t, "product.unlisted", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(got.msg.Body, &env))
	assert.Equal(t, uint64(4), env.Seq)
	assert.Equal(t, "0xa11ce", env.Account)
	assert.Equal(t, env.ID.String(), got.msg.MessageId)
}

func TestPublish_Failure(t *testing.T) {
	ch := &mockChannel{publishErr: errors.New("channel closed")}
	p, err := newPublisher(ch, "marketplace.events", zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, p.Publish(context.Background(), model.ProductUnlisted{Seq: 1}))
	assert.NotPanics(t, func() { p.Handle(model.ProductUnlisted{Seq: 2}) })
}

func TestClose(t *testing.T) {
	ch := &mockChannel{}
	p, err := newPublisher(ch, "x", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
