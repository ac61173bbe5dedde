// Package filterstate holds the current search filters as an immutable
// value replaced atomically.
package filterstate

import (
	"sync/atomic"

	"github.com/ffimoveis/imoveis/internal/domain"
)

type snapshot struct {
	filters domain.SearchFilters
	bounds  domain.Bounds
	// locations is nil until the known set has been loaded.
	locations map[string]struct{}
}

// Store owns the filter state. Readers always observe a whole snapshot;
// writers never mutate one in place.
type Store struct {
	state atomic.Pointer[snapshot]
}

// New creates a Store holding the cleared filters for b.
func New(b domain.Bounds) *Store {
	s := &Store{}
	s.state.Store(&snapshot{filters: domain.DefaultFilters(b), bounds: b})
	return s
}

// Current returns the current filters.
func (s *Store) Current() domain.SearchFilters {
	return s.state.Load().filters
}

// Bounds returns the bounds the filters are clamped to.
func (s *Store) Bounds() domain.Bounds {
	return s.state.Load().bounds
}

// Replace validates next and makes it current. The price range is clamped
// into the bounds with inverted edges swapped; unknown property types and
// location ids are reset to empty. The stored value is returned.
func (s *Store) Replace(next domain.SearchFilters) domain.SearchFilters {
	return s.update(func(cur *snapshot) *snapshot {
		return &snapshot{
			filters:   sanitize(next, cur.bounds, cur.locations),
			bounds:    cur.bounds,
			locations: cur.locations,
		}
	}).filters
}

// Reset clears every filter.
func (s *Store) Reset() domain.SearchFilters {
	return s.update(func(cur *snapshot) *snapshot {
		return &snapshot{filters: domain.DefaultFilters(cur.bounds), bounds: cur.bounds, locations: cur.locations}
	}).filters
}

// SetBounds replaces the bounds. A price edge sitting on the old bound
// follows the new one, so an untouched slider spans the new full extent;
// any other edge is re-clamped.
func (s *Store) SetBounds(b domain.Bounds) domain.SearchFilters {
	return s.update(func(cur *snapshot) *snapshot {
		f := cur.filters
		pr := f.PriceRange
		if pr.Low == cur.bounds.Min {
			pr.Low = b.Min
		}
		if pr.High == cur.bounds.Max {
			pr.High = b.Max
		}
		f.PriceRange = pr
		return &snapshot{
			filters:   sanitize(f, b, cur.locations),
			bounds:    b,
			locations: cur.locations,
		}
	}).filters
}

// SetLocations loads the known location ids. A current location that is
// not among them is cleared.
func (s *Store) SetLocations(ids []string) domain.SearchFilters {
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return s.update(func(cur *snapshot) *snapshot {
		return &snapshot{
			filters:   sanitize(cur.filters, cur.bounds, known),
			bounds:    cur.bounds,
			locations: known,
		}
	}).filters
}

// KnownLocation reports whether id may be selected. Every id is accepted
// before the location set is loaded.
func (s *Store) KnownLocation(id string) bool {
	locs := s.state.Load().locations
	if locs == nil {
		return true
	}
	_, ok := locs[id]
	return ok
}

func (s *Store) update(fn func(*snapshot) *snapshot) *snapshot {
	for {
		cur := s.state.Load()
		next := fn(cur)
		if s.state.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func sanitize(f domain.SearchFilters, b domain.Bounds, locations map[string]struct{}) domain.SearchFilters {
	f.PropertyType = domain.ParsePropertyType(string(f.PropertyType))
	if f.LocationID != "" && locations != nil {
		if _, ok := locations[f.LocationID]; !ok {
			f.LocationID = ""
		}
	}
	f.PriceRange = f.PriceRange.ClampTo(b)
	return f
}
