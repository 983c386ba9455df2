package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesTopicKeyAndHeaders(t *testing.T) {
	writer := &fakeWriter{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &KafkaPublisher{writer: writer, now: func() time.Time { return fixed }}

	err := pub.Publish(context.Background(), Message{
		Topic:      "fulfillment-payout-events",
		Key:        "po-1",
		Data:       []byte(`{"amount_minor":100}`),
		Attributes: map[string]string{"event_type": "payout_released"},
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)

	msg := writer.written[0]
	assert.Equal(t, "fulfillment-payout-events", msg.Topic)
	assert.Equal(t, []byte("po-1"), msg.Key)
	assert.Equal(t, fixed, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("payout_released"), msg.Headers[0].Value)

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherRequiresTopic(t *testing.T) {
	pub := &KafkaPublisher{writer: &fakeWriter{}, now: time.Now}
	err := pub.Publish(context.Background(), Message{Data: []byte("x")})
	assert.ErrorIs(t, err, ErrTopicRequired)
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(config.KafkaConfig{}, logger.Nop())
	require.Error(t, err)
}

type fakeTopicPublisher struct {
	messages []*gcppubsub.Message
	resumed  []string
	err      error
}

func (p *fakeTopicPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{err: p.err}
}

func (p *fakeTopicPublisher) ResumePublish(key string) { p.resumed = append(p.resumed, key) }

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "server-id", r.err }

func TestPubSubPublisherRoutesByTopicWithOrderingKey(t *testing.T) {
	topics := map[string]*fakeTopicPublisher{}
	pub := &PubSubPublisher{topic: func(name string) topicPublisher {
		fp := &fakeTopicPublisher{}
		topics[name] = fp
		return fp
	}}

	err := pub.Publish(context.Background(), Message{
		Topic:      "orders",
		Key:        "po-1",
		Data:       []byte(`{}`),
		Attributes: map[string]string{"event_type": "order_paid"},
	})
	require.NoError(t, err)
	require.Contains(t, topics, "orders")
	require.Len(t, topics["orders"].messages, 1)
	sent := topics["orders"].messages[0]
	assert.Equal(t, "order_paid", sent.Attributes["event_type"])
	assert.Equal(t, "po-1", sent.OrderingKey)
	assert.Empty(t, topics["orders"].resumed)
}

func TestPubSubPublisherResumesKeyAfterFailure(t *testing.T) {
	boom := errors.New("unavailable")
	fp := &fakeTopicPublisher{err: boom}
	pub := &PubSubPublisher{topic: func(string) topicPublisher { return fp }}

	err := pub.Publish(context.Background(), Message{Topic: "orders", Key: "po-2"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"po-2"}, fp.resumed)
}

func TestPubSubPublisherMissingTopicHandle(t *testing.T) {
	pub := &PubSubPublisher{topic: func(string) topicPublisher { return nil }}
	require.Error(t, pub.Publish(context.Background(), Message{Topic: "orders"}))
	require.ErrorIs(t, pub.Publish(context.Background(), Message{}), ErrTopicRequired)
}

func TestNewRejectsUnknownBroker(t *testing.T) {
	cfg := &config.Config{Outbox: config.OutboxConfig{Broker: "rabbit"}}
	_, err := New(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
}
