package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ffimoveis/imoveis/internal/bounds"
	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/urlsync"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	"github.com/ffimoveis/imoveis/pkg/kafka"
	"github.com/ffimoveis/imoveis/pkg/logger"
	"github.com/ffimoveis/imoveis/pkg/tracing"
	"github.com/ffimoveis/imoveis/pkg/validator"
)

// EventSource identifies events published by this service.
const EventSource = "listings-service"

// Property event types.
const (
	EventPropertyCreated = "property.created"
	EventPropertyUpdated = "property.updated"
	EventPropertyDeleted = "property.deleted"
)

var errReadOnly = apperrors.ReadOnly("catalog backend does not accept writes")

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Invalidator drops cached catalog aggregates.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SearchResult is the outcome of a listing search.
type SearchResult struct {
	Properties []domain.PropertyRecord `json:"properties"`
	Total      int                     `json:"total"`
	Filters    domain.SearchFilters    `json:"filters"`
	Bounds     domain.Bounds           `json:"bounds"`
	// Query is the canonical shareable query string for Filters.
	Query string `json:"query"`
}

// PropertyTypeOption is an entry of the property type selector.
type PropertyTypeOption struct {
	Value       domain.PropertyType `json:"value"`
	DisplayName string              `json:"display_name"`
}

// Option customizes a ListingService.
type Option func(*ListingService)

// WithAggregates serves bounds and locations from src instead of the
// backend, typically a cache in front of it.
func WithAggregates(src catalog.Source) Option {
	return func(s *ListingService) { s.aggregates = src }
}

// WithInvalidator is called after every write.
func WithInvalidator(inv Invalidator) Option {
	return func(s *ListingService) { s.invalidator = inv }
}

// WithEventPublisher publishes property change events after admin writes.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *ListingService) { s.publisher = p }
}

// ListingService implements the listing search API over a catalog backend.
type ListingService struct {
	backend     catalog.Catalog
	aggregates  catalog.Source
	searcher    catalog.Searcher
	writer      catalog.Writer
	invalidator Invalidator
	publisher   EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewListingService creates a listing service. Filtering is pushed down to
// the backend when it implements catalog.Searcher.
func NewListingService(backend catalog.Catalog, logger *slog.Logger, opts ...Option) *ListingService {
	s := &ListingService{
		backend:    backend,
		aggregates: backend,
		searcher:   catalog.SearcherFor(backend),
		logger:     logger,
		tracer:     tracing.Tracer("internal/service"),
	}
	if w, ok := backend.(catalog.Writer); ok {
		s.writer = w
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bounds resolves the current price bounds. It never fails: an unreachable
// backend yields domain.DefaultBounds.
func (s *ListingService) Bounds(ctx context.Context) domain.Bounds {
	b, origin := bounds.NewResolver(s.aggregates, s.logger).Resolve(ctx)
	s.logger.DebugContext(ctx, "price bounds resolved",
		slog.Float64("min", b.Min),
		slog.Float64("max", b.Max),
		slog.String("origin", string(origin)),
	)
	return b
}

// Locations returns the location selector entries.
func (s *ListingService) Locations(ctx context.Context) ([]domain.Location, error) {
	locs, err := s.aggregates.FetchLocations(ctx)
	if err != nil {
		return nil, catalog.FetchFailure("locations", err)
	}
	return locs, nil
}

// Neighborhoods returns the neighborhoods of a location. A location the
// catalog does not know is reported as not found.
func (s *ListingService) Neighborhoods(ctx context.Context, locationID string) ([]domain.Neighborhood, error) {
	var (
		ns  []domain.Neighborhood
		err error
	)
	if lister, ok := s.backend.(catalog.NeighborhoodLister); ok {
		ns, err = lister.FetchNeighborhoods(ctx, locationID)
	} else {
		var records []domain.PropertyRecord
		records, err = s.backend.FetchAllProperties(ctx)
		ns = catalog.NeighborhoodsOf(records, locationID)
	}
	if err != nil {
		return nil, catalog.FetchFailure("neighborhoods", err)
	}
	if len(ns) > 0 {
		return ns, nil
	}

	locs, err := s.Locations(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "location check skipped",
			slog.String("location_id", locationID),
			slog.String("error", err.Error()),
		)
		return ns, nil
	}
	if !slices.ContainsFunc(locs, func(l domain.Location) bool { return l.ID == locationID }) {
		return nil, apperrors.NotFound("location", locationID)
	}
	return ns, nil
}

// PropertyTypes returns the property type enumeration in display order.
func (s *ListingService) PropertyTypes() []PropertyTypeOption {
	types := domain.ValidPropertyTypes()
	out := make([]PropertyTypeOption, 0, len(types))
	for _, t := range types {
		out = append(out, PropertyTypeOption{Value: t, DisplayName: t.DisplayName()})
	}
	return out
}

// Canonicalize parses values against the current bounds and returns the
// resulting filters with their minimal query string.
func (s *ListingService) Canonicalize(ctx context.Context, values url.Values) (domain.SearchFilters, domain.Bounds, string) {
	b := s.Bounds(ctx)
	f := s.sanitize(ctx, urlsync.Parse(values, b), b)
	return f, b, urlsync.Encode(f, b)
}

// SearchQuery runs a search described by URL query parameters. Malformed
// parameters are coerced, never rejected.
func (s *ListingService) SearchQuery(ctx context.Context, values url.Values) (*SearchResult, error) {
	f, b, _ := s.Canonicalize(ctx, values)
	return s.search(ctx, f, b)
}

// Search runs a search for f after clamping it into the current bounds.
func (s *ListingService) Search(ctx context.Context, f domain.SearchFilters) (*SearchResult, error) {
	b := s.Bounds(ctx)
	return s.search(ctx, s.sanitize(ctx, f, b), b)
}

func (s *ListingService) search(ctx context.Context, f domain.SearchFilters, b domain.Bounds) (*SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "ListingService.Search", trace.WithAttributes(
		attribute.String("listing.filter.query", f.Query),
		attribute.String("listing.filter.property_type", string(f.PropertyType)),
		attribute.String("listing.filter.location_id", f.LocationID),
		attribute.Float64("listing.filter.min_price", f.PriceRange.Low),
		attribute.Float64("listing.filter.max_price", f.PriceRange.High),
	))
	defer span.End()
	if gen, ok := logger.GenerationFromContext(ctx); ok {
		span.SetAttributes(tracing.SearchGeneration(gen))
	}

	records, err := s.searcher.Search(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, catalog.FetchFailure("search results", err)
	}
	if records == nil {
		records = []domain.PropertyRecord{}
	}
	span.SetAttributes(attribute.Int("listing.results", len(records)))

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", f.Query),
		slog.Int("total", len(records)),
	)

	return &SearchResult{
		Properties: records,
		Total:      len(records),
		Filters:    f,
		Bounds:     b,
		Query:      urlsync.Encode(f, b),
	}, nil
}

// sanitize clamps the price range and drops values the catalog does not
// know. A failed location lookup keeps the location id.
func (s *ListingService) sanitize(ctx context.Context, f domain.SearchFilters, b domain.Bounds) domain.SearchFilters {
	f.PropertyType = domain.ParsePropertyType(string(f.PropertyType))
	f.PriceRange = f.PriceRange.ClampTo(b)
	if f.LocationID == "" {
		return f
	}

	locs, err := s.aggregates.FetchLocations(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "location lookup failed, keeping location filter",
			slog.String("location_id", f.LocationID),
			slog.String("error", err.Error()),
		)
		return f
	}
	for _, l := range locs {
		if l.ID == f.LocationID {
			return f
		}
	}
	f.LocationID = ""
	return f
}

// GetProperty returns a single listing.
func (s *ListingService) GetProperty(ctx context.Context, id string) (*domain.PropertyRecord, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("property id is required")
	}
	r, err := s.backend.GetProperty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return r, nil
}

// UpsertProperty validates input, writes it through to the backend and
// publishes a created or updated event.
func (s *ListingService) UpsertProperty(ctx context.Context, input *UpsertPropertyInput) (*domain.PropertyRecord, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	eventType := EventPropertyUpdated
	if _, err := s.backend.GetProperty(ctx, input.ID); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("upsert property: %w", err)
		}
		eventType = EventPropertyCreated
	}

	record := input.Record()
	if err := s.SyncProperty(ctx, record); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "property saved",
		slog.String("property_id", record.ID),
		slog.String("event_type", eventType),
	)
	s.publish(ctx, eventType, record.ID, record)
	return record, nil
}

// DeleteProperty removes a listing and publishes a deleted event.
func (s *ListingService) DeleteProperty(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("property id is required")
	}
	if err := s.RemoveProperty(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "property deleted", slog.String("property_id", id))
	s.publish(ctx, EventPropertyDeleted, id, PropertyDeletedPayload{ID: id})
	return nil
}

// SyncProperty writes record to the backend and invalidates cached
// aggregates. No event is published.
func (s *ListingService) SyncProperty(ctx context.Context, record *domain.PropertyRecord) error {
	if s.writer == nil {
		return errReadOnly
	}
	if err := s.writer.UpsertProperty(ctx, record); err != nil {
		return fmt.Errorf("upsert property: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// RemoveProperty deletes id from the backend and invalidates cached
// aggregates. No event is published.
func (s *ListingService) RemoveProperty(ctx context.Context, id string) error {
	if s.writer == nil {
		return errReadOnly
	}
	if err := s.writer.DeleteProperty(ctx, id); err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *ListingService) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate catalog cache", slog.String("error", err.Error()))
	}
}

// publish is best effort: the write already happened.
func (s *ListingService) publish(ctx context.Context, eventType, id string, data any) {
	if s.publisher == nil {
		return
	}
	event, err := kafka.NewEvent(eventType, id, "property", EventSource, data)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build event", slog.String("error", err.Error()))
		return
	}
	event.WithContext(ctx)

	topic := kafka.Topic("property", actionOf(eventType))
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish property event",
			slog.String("event_type", eventType),
			slog.String("property_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func actionOf(eventType string) string {
	switch eventType {
	case EventPropertyCreated:
		return "created"
	case EventPropertyDeleted:
		return "deleted"
	default:
		return "updated"
	}
}
