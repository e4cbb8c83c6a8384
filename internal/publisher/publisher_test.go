package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/marketplace/pkg/model"
)

// --- mock types ---

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

func newTestPublisher(js *mockJetStream) *Publisher {
	return &Publisher{js: js, prefix: "evt.marketplace", service: "ledger-service"}
}

// --- tests ---

func TestPublishEvent_Success(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	ev := model.ProductSold{
		Seq:       12,
		ProductID: 3,
		Seller:    "0xa11ce",
		Buyer:     "0xb0b",
		Price:     decimal.RequireFromString("10000000000000000"),
		Reward:    decimal.NewFromInt(1),
		At:        time.Now().UTC(),
	}
	require.NoError(t, p.PublishEvent(context.Background(), ev))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.marketplace.product.sold.v1", msg.Subject)
	assert.Equal(t, "product.sold", msg.Header.Get("event_type"))
	assert.Equal(t, "0xb0b", msg.Header.Get("account"))
	assert.Equal(t, "ledger-service-12", msg.Header.Get(nats.MsgIdHdr))

	var env model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, uint64(12), env.Seq)
	assert.Equal(t, model.EnvelopeVersion, env.Version)

	var payload model.ProductSold
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "10000000000000000", payload.Price.String())
}

func TestPublishEvent_UnjournaledUsesEnvelopeID(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	require.NoError(t, p.PublishEvent(context.Background(), model.LedgerAudited{Products: 2}))
	require.Len(t, js.published, 1)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(js.published[0].Data, &env))
	assert.Equal(t, env.ID.String(), js.published[0].Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "evt.marketplace.ledger.audited.v1", js.published[0].Subject)
}

func TestPublishEvent_Failure(t *testing.T) {
	js := &mockJetStream{fail: true}
	p := newTestPublisher(js)

	err := p.PublishEvent(context.Background(), model.ProductUnlisted{Seq: 1})
	assert.Error(t, err)
	assert.Empty(t, js.published)
}

func TestHandle_SwallowsErrors(t *testing.T) {
	js := &mockJetStream{fail: true}
	p := newTestPublisher(js)
	assert.NotPanics(t, func() { p.Handle(model.ProductUnlisted{Seq: 1}) })
	assert.False(t, p.Connected())
}
