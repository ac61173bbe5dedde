package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffimoveis/imoveis/internal/domain"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

type stubSource struct {
	records []domain.PropertyRecord
	err     error
}

func (s *stubSource) FetchAllProperties(context.Context) ([]domain.PropertyRecord, error) {
	return s.records, s.err
}

func (s *stubSource) FetchPriceBounds(context.Context) (domain.Bounds, error) {
	return domain.Bounds{}, ErrNoPrices
}

func (s *stubSource) FetchLocations(context.Context) ([]domain.Location, error) {
	return LocationsOf(s.records), s.err
}

type pushDownSource struct {
	stubSource
	calls int
}

func (p *pushDownSource) Search(context.Context, domain.SearchFilters) ([]domain.PropertyRecord, error) {
	p.calls++
	return nil, nil
}

func records() []domain.PropertyRecord {
	return []domain.PropertyRecord{
		{ID: "1", Title: "Apartamento", City: "São Paulo", LocationID: "sao-paulo", Price: 741000, PropertyType: domain.PropertyTypeApartment},
		{ID: "2", Title: "Casa", City: "Campinas", LocationID: "campinas", Price: 850000, PropertyType: domain.PropertyTypeHouse},
		{ID: "3", Title: "Cobertura", City: "Santos", LocationID: "santos", Price: 1200000, PropertyType: domain.PropertyTypePenthouse},
		{ID: "4", Title: "Studio", City: "São Paulo", LocationID: "sao-paulo", Price: 400000, PropertyType: domain.PropertyTypeApartment},
	}
}

func TestClientSide_Search(t *testing.T) {
	cs := NewClientSide(&stubSource{records: records()})
	f := domain.SearchFilters{
		PropertyType: domain.PropertyTypeApartment,
		PriceRange:   domain.PriceRange{Low: 0, High: 800000},
	}

	got, err := cs.Search(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "4", got[1].ID)
}

func TestClientSide_Search_FetchFailure(t *testing.T) {
	cs := NewClientSide(&stubSource{err: errors.New("connection refused")})

	_, err := cs.Search(context.Background(), domain.DefaultFilters(domain.DefaultBounds))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSearcherFor(t *testing.T) {
	plain := &stubSource{}
	_, isClientSide := SearcherFor(plain).(*ClientSide)
	assert.True(t, isClientSide)

	pd := &pushDownSource{}
	s := SearcherFor(pd)
	_, err := s.Search(context.Background(), domain.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, pd.calls)
}

func TestFetchFailure_WrapsOnce(t *testing.T) {
	err := FetchFailure("locations", errors.New("timeout"))
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Equal(t, "fetch locations: service unavailable: timeout", err.Error())

	again := FetchFailure("properties", err)
	assert.Equal(t, "fetch properties: fetch locations: service unavailable: timeout", again.Error())
}

func TestBoundsOf(t *testing.T) {
	b, ok := BoundsOf(records())
	require.True(t, ok)
	assert.Equal(t, domain.Bounds{Min: 400000, Max: 1200000}, b)

	_, ok = BoundsOf(nil)
	assert.False(t, ok)
}

func TestLocationsOf_DistinctAndCollated(t *testing.T) {
	recs := append(records(),
		domain.PropertyRecord{ID: "5", City: "Águas de Lindóia", LocationID: "aguas-de-lindoia"},
		domain.PropertyRecord{ID: "6", City: "Sem local"},
	)

	got := LocationsOf(recs)
	assert.Equal(t, []domain.Location{
		{ID: "aguas-de-lindoia", DisplayName: "Águas de Lindóia"},
		{ID: "campinas", DisplayName: "Campinas"},
		{ID: "santos", DisplayName: "Santos"},
		{ID: "sao-paulo", DisplayName: "São Paulo"},
	}, got)
}

func TestLocationsOf_Empty(t *testing.T) {
	assert.Empty(t, LocationsOf(nil))
}

func TestNeighborhoodsOf_PerLocationDistinctAndCollated(t *testing.T) {
	recs := []domain.PropertyRecord{
		{ID: "1", NeighborhoodName: "Tatuapé", LocationID: "sao-paulo"},
		{ID: "2", NeighborhoodName: "Água Branca", LocationID: "sao-paulo"},
		{ID: "3", NeighborhoodName: "tatuapé", LocationID: "campinas"},
		{ID: "4", NeighborhoodName: "Tatuapé", LocationID: "sao-paulo"},
		{ID: "5", NeighborhoodName: "", LocationID: "sao-paulo"},
		{ID: "6", NeighborhoodName: "Bela Vista", LocationID: "sao-paulo"},
	}

	assert.Equal(t, []domain.Neighborhood{
		{Name: "Água Branca", LocationID: "sao-paulo"},
		{Name: "Bela Vista", LocationID: "sao-paulo"},
		{Name: "Tatuapé", LocationID: "sao-paulo"},
	}, NeighborhoodsOf(recs, "sao-paulo"))
	assert.Empty(t, NeighborhoodsOf(recs, "santos"))
	assert.NotNil(t, NeighborhoodsOf(nil, "santos"))
}

func TestPrepareForWrite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := domain.PropertyRecord{City: "São Paulo"}

	PrepareForWrite(&r, now)
	assert.Equal(t, "sao-paulo", r.LocationID)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, now, r.UpdatedAt)

	later := now.Add(time.Hour)
	r.LocationID = "custom"
	PrepareForWrite(&r, later)
	assert.Equal(t, "custom", r.LocationID)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, later, r.UpdatedAt)
}
