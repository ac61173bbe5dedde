package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ffimoveis/imoveis/pkg/logger"
)

const (
	envelopeVersion = 1

	metaSearchGeneration = "search_generation"
)

// Event is the JSON envelope of every message on an imoveis topic. Data holds
// the property payload; Metadata carries request fields across the broker.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent wraps data in a fresh envelope for aggregateID.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
		Metadata:      map[string]string{},
	}, nil
}

// WithCorrelationID sets the correlation id.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithContext copies the correlation id and search generation found in ctx.
// Fields missing from ctx leave the envelope untouched.
func (e *Event) WithContext(ctx context.Context) *Event {
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		e.CorrelationID = id
	}
	if gen, ok := logger.GenerationFromContext(ctx); ok {
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		e.Metadata[metaSearchGeneration] = strconv.FormatUint(gen, 10)
	}
	return e
}

// Context is the inverse of WithContext: it returns ctx carrying the
// envelope's correlation id and search generation.
func (e *Event) Context(ctx context.Context) context.Context {
	if e.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, e.CorrelationID)
	}
	if gen, err := strconv.ParseUint(e.Metadata[metaSearchGeneration], 10, 64); err == nil {
		ctx = logger.WithGeneration(ctx, gen)
	}
	return ctx
}

// Marshal encodes the envelope.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

var errNoEventType = errors.New("missing event_type")

// UnmarshalEvent decodes an envelope, rejecting one without an event type.
func UnmarshalEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("decode event envelope: %w", errNoEventType)
	}
	return &e, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.EventID)
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
