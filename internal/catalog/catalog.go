// Package catalog defines the data collaborator consumed by the search
// engine and the backends that implement it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/filter"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	"github.com/ffimoveis/imoveis/pkg/slug"
)

// ErrNoPrices is returned by FetchPriceBounds when the dataset has no priced
// records.
var ErrNoPrices = errors.New("catalog has no priced properties")

// Source is the read contract of the data collaborator. Any method may fail.
type Source interface {
	// FetchAllProperties returns every listing in the catalog.
	FetchAllProperties(ctx context.Context) ([]domain.PropertyRecord, error)

	// FetchPriceBounds returns the backend's min/max price aggregate.
	FetchPriceBounds(ctx context.Context) (domain.Bounds, error)

	// FetchLocations returns the entries of the location selector.
	FetchLocations(ctx context.Context) ([]domain.Location, error)
}

// Searcher evaluates filters and returns the matching listings. Backends that
// push filtering down to storage must return exactly what filter.Apply would
// return over FetchAllProperties.
type Searcher interface {
	Search(ctx context.Context, filters domain.SearchFilters) ([]domain.PropertyRecord, error)
}

// Getter looks up a single listing.
type Getter interface {
	GetProperty(ctx context.Context, id string) (*domain.PropertyRecord, error)
}

// Writer is implemented by backends that accept administrative writes.
type Writer interface {
	UpsertProperty(ctx context.Context, record *domain.PropertyRecord) error
	DeleteProperty(ctx context.Context, id string) error
}

// NeighborhoodLister is implemented by backends that keep neighborhoods
// apart from the listings. Others are served by NeighborhoodsOf.
type NeighborhoodLister interface {
	FetchNeighborhoods(ctx context.Context, locationID string) ([]domain.Neighborhood, error)
}

// Catalog is a full backend.
type Catalog interface {
	Source
	Getter
}

// ClientSide evaluates filters in process over the full dataset.
type ClientSide struct {
	source Source
}

// NewClientSide wraps source with in-process filtering.
func NewClientSide(source Source) *ClientSide {
	return &ClientSide{source: source}
}

// Search fetches every listing and applies the predicate locally.
func (c *ClientSide) Search(ctx context.Context, filters domain.SearchFilters) ([]domain.PropertyRecord, error) {
	records, err := c.source.FetchAllProperties(ctx)
	if err != nil {
		return nil, FetchFailure("properties", err)
	}
	return filter.Apply(filters, records), nil
}

// SearcherFor returns the backend's own Searcher when it has one and an
// in-process evaluator otherwise.
func SearcherFor(source Source) Searcher {
	if s, ok := source.(Searcher); ok {
		return s
	}
	return NewClientSide(source)
}

// FetchFailure wraps a collaborator error so that callers can recognize it
// with errors.Is(err, apperrors.ErrServiceUnavail).
func FetchFailure(what string, err error) error {
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return fmt.Errorf("fetch %s: %w", what, err)
	}
	return fmt.Errorf("fetch %s: %w: %w", what, apperrors.ErrServiceUnavail, err)
}

// BoundsOf computes the price extent of records. ok is false when records is
// empty.
func BoundsOf(records []domain.PropertyRecord) (b domain.Bounds, ok bool) {
	if len(records) == 0 {
		return domain.Bounds{}, false
	}
	b = domain.Bounds{Min: records[0].Price, Max: records[0].Price}
	for _, r := range records[1:] {
		if r.Price < b.Min {
			b.Min = r.Price
		}
		if r.Price > b.Max {
			b.Max = r.Price
		}
	}
	return b, true
}

// LocationsOf returns the distinct locations referenced by records, ordered
// by display name using Portuguese collation.
func LocationsOf(records []domain.PropertyRecord) []domain.Location {
	seen := make(map[string]struct{}, len(records))
	locs := make([]domain.Location, 0)
	for _, r := range records {
		if r.LocationID == "" {
			continue
		}
		if _, ok := seen[r.LocationID]; ok {
			continue
		}
		seen[r.LocationID] = struct{}{}
		locs = append(locs, domain.Location{ID: r.LocationID, DisplayName: r.City})
	}
	SortLocations(locs)
	return locs
}

// NeighborhoodsOf returns the distinct neighborhoods of locationID
// referenced by records, ordered like SortNeighborhoods.
func NeighborhoodsOf(records []domain.PropertyRecord, locationID string) []domain.Neighborhood {
	seen := make(map[string]struct{})
	out := make([]domain.Neighborhood, 0)
	for _, r := range records {
		if r.LocationID != locationID || r.NeighborhoodName == "" {
			continue
		}
		if _, ok := seen[r.NeighborhoodName]; ok {
			continue
		}
		seen[r.NeighborhoodName] = struct{}{}
		out = append(out, domain.Neighborhood{Name: r.NeighborhoodName, LocationID: locationID})
	}
	SortNeighborhoods(out)
	return out
}

// SortNeighborhoods orders ns by name using Portuguese collation.
func SortNeighborhoods(ns []domain.Neighborhood) {
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	slices.SortStableFunc(ns, func(a, b domain.Neighborhood) int {
		return c.CompareString(a.Name, b.Name)
	})
}

// SortLocations orders locs by display name using Portuguese collation.
func SortLocations(locs []domain.Location) {
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	slices.SortStableFunc(locs, func(a, b domain.Location) int {
		return c.CompareString(a.DisplayName, b.DisplayName)
	})
}

// PrepareForWrite fills the derived fields of a record about to be stored:
// the location id from the city when absent, and the timestamps.
func PrepareForWrite(r *domain.PropertyRecord, now time.Time) {
	if r.LocationID == "" {
		r.LocationID = slug.LocationID(r.City)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
