// Package event applies property change events from Kafka to the catalog.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/service"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	pkgkafka "github.com/ffimoveis/imoveis/pkg/kafka"
	"github.com/ffimoveis/imoveis/pkg/validator"
)

// Kafka topics for property change events.
var (
	TopicPropertyCreated = pkgkafka.Topic("property", "created")
	TopicPropertyUpdated = pkgkafka.Topic("property", "updated")
	TopicPropertyDeleted = pkgkafka.Topic("property", "deleted")
)

// Topics returns every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicPropertyCreated, TopicPropertyUpdated, TopicPropertyDeleted}
}

// PropertySyncer applies changes without publishing them again.
type PropertySyncer interface {
	SyncProperty(ctx context.Context, record *domain.PropertyRecord) error
	RemoveProperty(ctx context.Context, id string) error
}

// Consumer handles Kafka events related to property changes.
type Consumer struct {
	syncer PropertySyncer
	logger *slog.Logger
}

// NewConsumer creates a new property event consumer.
func NewConsumer(syncer PropertySyncer, logger *slog.Logger) *Consumer {
	return &Consumer{
		syncer: syncer,
		logger: logger,
	}
}

// Handle processes a Kafka event based on its type. Events published by
// this service were applied when the write was made and are skipped.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.Source == service.EventSource {
		c.logger.DebugContext(ctx, "skipping own event",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
		)
		return nil
	}

	switch event.EventType {
	case service.EventPropertyCreated, service.EventPropertyUpdated:
		return c.handlePropertyChanged(ctx, event)
	case service.EventPropertyDeleted:
		return c.handlePropertyDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handlePropertyChanged upserts the listing carried by a created or
// updated event.
func (c *Consumer) handlePropertyChanged(ctx context.Context, event *pkgkafka.Event) error {
	var input service.UpsertPropertyInput
	if err := event.UnmarshalData(&input); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if input.ID == "" {
		input.ID = event.AggregateID
	}
	if err := validator.Validate(&input); err != nil {
		return fmt.Errorf("validate %s data: %w", event.EventType, err)
	}

	if err := c.syncer.SyncProperty(ctx, input.Record()); err != nil {
		return fmt.Errorf("sync property from %s event: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "synced property from event",
		slog.String("property_id", input.ID),
		slog.String("event_type", event.EventType),
	)
	return nil
}

// handlePropertyDeleted removes a listing. A listing that is already gone
// counts as handled.
func (c *Consumer) handlePropertyDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data service.PropertyDeletedPayload
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}
	if err := validator.Validate(&data); err != nil {
		return fmt.Errorf("validate %s data: %w", event.EventType, err)
	}

	err := c.syncer.RemoveProperty(ctx, data.ID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.logger.DebugContext(ctx, "deleted property already absent", slog.String("property_id", data.ID))
		return nil
	case err != nil:
		return fmt.Errorf("remove property from %s event: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "removed property from event", slog.String("property_id", data.ID))
	return nil
}
