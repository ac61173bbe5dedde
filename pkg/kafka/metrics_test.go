package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerMetrics_SuccessfulMessage(t *testing.T) {
	cfg := testConsumerConfig()
	cfg.Topic = "imoveis.property.metrics-ok"
	received := testutil.ToFloat64(ConsumerMessagesReceived.WithLabelValues(cfg.Topic, cfg.GroupID))
	processed := testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(cfg.Topic, cfg.GroupID))

	event, err := NewEvent("imoveis.property.updated", "p1", "property", "listings", propertyPayload{ID: "p1"})
	require.NoError(t, err)
	c := newConsumer(&fakeReader{}, cfg, func(context.Context, *Event) error { return nil }, testLogger())

	c.process(context.Background(), eventMessage(t, 1, event))

	assert.Equal(t, received+1, testutil.ToFloat64(ConsumerMessagesReceived.WithLabelValues(cfg.Topic, cfg.GroupID)))
	assert.Equal(t, processed+1, testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(cfg.Topic, cfg.GroupID)))
}

func TestConsumerMetrics_FailedMessage(t *testing.T) {
	cfg := testConsumerConfig()
	cfg.Topic = "imoveis.property.metrics-fail"
	failed := testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(cfg.Topic, cfg.GroupID))
	dead := testutil.ToFloat64(ConsumerDLQPublished.WithLabelValues(cfg.Topic, cfg.GroupID))

	event, err := NewEvent("imoveis.property.updated", "p1", "property", "listings", propertyPayload{ID: "p1"})
	require.NoError(t, err)
	handler := func(context.Context, *Event) error { return errors.New("catalog unavailable") }
	c := newConsumer(&fakeReader{}, cfg, handler, testLogger(), WithDeadLetter(&recordingDLQ{}))

	c.process(context.Background(), eventMessage(t, 1, event))

	assert.Equal(t, failed+1, testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(cfg.Topic, cfg.GroupID)))
	assert.Equal(t, dead+1, testutil.ToFloat64(ConsumerDLQPublished.WithLabelValues(cfg.Topic, cfg.GroupID)))
}

func TestProducerMetrics(t *testing.T) {
	const topic = "imoveis.property.metrics"
	published := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic))
	failures := testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic))

	w := &recordingWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	event, err := NewEvent("imoveis.property.created", "p1", "property", "listings", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), topic, event))
	w.err = kafka.LeaderNotAvailable
	require.Error(t, p.Publish(context.Background(), topic, event))

	assert.Equal(t, published+1, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
	assert.Equal(t, failures+1, testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
}
