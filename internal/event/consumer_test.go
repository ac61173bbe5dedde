package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffimoveis/imoveis/internal/catalog/memory"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/service"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	pkgkafka "github.com/ffimoveis/imoveis/pkg/kafka"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func setup(t *testing.T) (*Consumer, *memory.Catalog, *service.ListingService, *countingInvalidator) {
	t.Helper()
	cat, err := memory.NewSeeded()
	require.NoError(t, err)
	inv := &countingInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewListingService(cat, logger, service.WithInvalidator(inv))
	return NewConsumer(svc, logger), cat, svc, inv
}

func newEvent(t *testing.T, eventType, id string, data any) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(eventType, id, "property", "crm-sync", data)
	require.NoError(t, err)
	return ev
}

func TestTopics(t *testing.T) {
	assert.Equal(t, []string{
		"imoveis.property.created",
		"imoveis.property.updated",
		"imoveis.property.deleted",
	}, Topics())
}

func TestConsumer_Handle_Created(t *testing.T) {
	c, cat, svc, inv := setup(t)
	ctx := context.Background()

	ev := newEvent(t, service.EventPropertyCreated, "20", map[string]any{
		"title":         "Apartamento garden",
		"city":          "Guarujá",
		"price":         450000,
		"property_type": "apartamento",
	})
	require.NoError(t, c.Handle(ctx, ev))

	assert.Equal(t, 4, cat.Len())
	p, err := cat.GetProperty(ctx, "20")
	require.NoError(t, err)
	assert.Equal(t, "guaruja", p.LocationID)
	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, 450000.0, svc.Bounds(ctx).Min)
}

func TestConsumer_Handle_Updated(t *testing.T) {
	c, cat, _, _ := setup(t)
	ctx := context.Background()

	ev := newEvent(t, service.EventPropertyUpdated, "1", map[string]any{
		"id":                "1",
		"title":             "Apartamento reformado no Tatuapé",
		"neighborhood_name": "Tatuapé",
		"city":              "São Paulo",
		"price":             780000,
		"property_type":     "apartamento",
		"created_at":        "2024-01-01T00:00:00Z",
	})
	require.NoError(t, c.Handle(ctx, ev))

	p, err := cat.GetProperty(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 780000.0, p.Price)
	assert.Equal(t, 3, cat.Len())
}

func TestConsumer_Handle_InvalidPayload(t *testing.T) {
	c, cat, _, _ := setup(t)

	ev := newEvent(t, service.EventPropertyCreated, "21", map[string]any{
		"title":         "Sem cidade",
		"price":         -1,
		"property_type": "castelo",
	})
	err := c.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 3, cat.Len())
}

func TestConsumer_Handle_MalformedData(t *testing.T) {
	c, _, _, _ := setup(t)

	ev := newEvent(t, service.EventPropertyCreated, "22", "not an object")
	assert.Error(t, c.Handle(context.Background(), ev))
}

func TestConsumer_Handle_Deleted(t *testing.T) {
	c, cat, _, inv := setup(t)
	ctx := context.Background()

	ev := newEvent(t, service.EventPropertyDeleted, "2", service.PropertyDeletedPayload{ID: "2"})
	require.NoError(t, c.Handle(ctx, ev))
	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, 1, inv.calls)

	// Redelivery of the same deletion is harmless.
	require.NoError(t, c.Handle(ctx, ev))
	assert.Equal(t, 2, cat.Len())
}

func TestConsumer_Handle_DeletedIDFromAggregate(t *testing.T) {
	c, cat, _, _ := setup(t)

	ev := newEvent(t, service.EventPropertyDeleted, "3", map[string]any{})
	require.NoError(t, c.Handle(context.Background(), ev))
	assert.Equal(t, 2, cat.Len())
}

func TestConsumer_Handle_SkipsOwnEvents(t *testing.T) {
	c, cat, _, _ := setup(t)

	ev, err := pkgkafka.NewEvent(service.EventPropertyDeleted, "1", "property", service.EventSource,
		service.PropertyDeletedPayload{ID: "1"})
	require.NoError(t, err)
	require.NoError(t, c.Handle(context.Background(), ev))
	assert.Equal(t, 3, cat.Len())
}

func TestConsumer_Handle_UnknownType(t *testing.T) {
	c, cat, _, _ := setup(t)

	ev := newEvent(t, "property.archived", "1", map[string]any{"id": "1"})
	require.NoError(t, c.Handle(context.Background(), ev))
	assert.Equal(t, 3, cat.Len())
}

type failingSyncer struct{ err error }

func (f failingSyncer) SyncProperty(context.Context, *domain.PropertyRecord) error { return f.err }

func (f failingSyncer) RemoveProperty(context.Context, string) error { return f.err }

func TestConsumer_Handle_SyncFailureIsReturned(t *testing.T) {
	down := errors.New("connection refused")
	c := NewConsumer(failingSyncer{err: down}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev := newEvent(t, service.EventPropertyDeleted, "1", service.PropertyDeletedPayload{ID: "1"})
	err := c.Handle(context.Background(), ev)
	assert.ErrorIs(t, err, down)
}
