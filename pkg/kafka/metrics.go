package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var consumerLabels = []string{"topic", "consumer_group"}

func consumerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, consumerLabels)
}

func producerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"topic"})
}

// Consumer metrics, labeled by topic and consumer group.
var (
	ConsumerMessagesReceived = consumerCounter("kafka_consumer_messages_received_total",
		"Property change messages fetched from the broker")
	ConsumerMessagesProcessed = consumerCounter("kafka_consumer_messages_processed_total",
		"Property change messages applied to the catalog")
	ConsumerMessagesFailed = consumerCounter("kafka_consumer_messages_failed_total",
		"Messages whose handler exhausted its attempts")
	ConsumerDLQPublished = consumerCounter("kafka_consumer_dlq_published_total",
		"Messages copied to a dead-letter topic")

	ConsumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_consumer_processing_duration_seconds",
		Help:    "Time spent handling one message, retries included",
		Buckets: prometheus.DefBuckets,
	}, consumerLabels)

	// ConsumerMessagesDuplicate is labeled by event type.
	ConsumerMessagesDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_duplicate_total",
		Help: "Redelivered events skipped by the idempotency guard",
	}, []string{"event_type"})
)

// Producer metrics, labeled by topic.
var (
	ProducerMessagesPublished = producerCounter("kafka_producer_messages_published_total",
		"Events published")
	ProducerPublishErrors = producerCounter("kafka_producer_publish_errors_total",
		"Events the broker did not accept")

	ProducerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_producer_publish_duration_seconds",
		Help:    "Duration of publish calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)
