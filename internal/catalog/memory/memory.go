// Package memory is an in-process catalog backend. Listings are kept in
// insertion order so results are stable across calls.
package memory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/filter"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

//go:embed seed.json
var seed []byte

// Catalog is an in-memory catalog. Thread-safe via sync.RWMutex.
type Catalog struct {
	mu      sync.RWMutex
	order   []string
	records map[string]domain.PropertyRecord
	now     func() time.Time
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		records: make(map[string]domain.PropertyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded creates a catalog holding the bundled sample listings.
func NewSeeded() (*Catalog, error) {
	records, err := Decode(bytes.NewReader(seed))
	if err != nil {
		return nil, fmt.Errorf("load seed listings: %w", err)
	}
	c := New()
	c.Replace(records)
	return c, nil
}

// Decode reads a JSON array of listings.
func Decode(r io.Reader) ([]domain.PropertyRecord, error) {
	var records []domain.PropertyRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return records, nil
}

// Replace swaps the whole dataset.
func (c *Catalog) Replace(records []domain.PropertyRecord) {
	order := make([]string, 0, len(records))
	byID := make(map[string]domain.PropertyRecord, len(records))
	for _, r := range records {
		if _, dup := byID[r.ID]; !dup {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
	c.records = byID
}

// FetchAllProperties returns every listing in insertion order.
func (c *Catalog) FetchAllProperties(_ context.Context) ([]domain.PropertyRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot(), nil
}

// FetchPriceBounds returns the price extent of the dataset.
func (c *Catalog) FetchPriceBounds(_ context.Context) (domain.Bounds, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := catalog.BoundsOf(c.snapshot())
	if !ok {
		return domain.Bounds{}, catalog.ErrNoPrices
	}
	return b, nil
}

// FetchLocations returns the locations referenced by the dataset.
func (c *Catalog) FetchLocations(_ context.Context) ([]domain.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return catalog.LocationsOf(c.snapshot()), nil
}

// FetchNeighborhoods returns the neighborhoods of locationID referenced by
// the dataset.
func (c *Catalog) FetchNeighborhoods(_ context.Context, locationID string) ([]domain.Neighborhood, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return catalog.NeighborhoodsOf(c.snapshot(), locationID), nil
}

// Search evaluates f without copying the dataset first.
func (c *Catalog) Search(_ context.Context, f domain.SearchFilters) ([]domain.PropertyRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := filter.NewMatcher(f)
	matched := make([]domain.PropertyRecord, 0)
	for _, id := range c.order {
		if r := c.records[id]; m.Match(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// GetProperty returns the listing with id.
func (c *Catalog) GetProperty(_ context.Context, id string) (*domain.PropertyRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.records[id]
	if !ok {
		return nil, apperrors.NotFound("property", id)
	}
	return &r, nil
}

// UpsertProperty adds or updates a listing. New listings are appended.
func (c *Catalog) UpsertProperty(_ context.Context, record *domain.PropertyRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := *record
	if existing, ok := c.records[r.ID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else {
		c.order = append(c.order, r.ID)
	}
	catalog.PrepareForWrite(&r, c.now())
	c.records[r.ID] = r
	*record = r
	return nil
}

// DeleteProperty removes a listing. Deleting an unknown id returns a
// not-found error.
func (c *Catalog) DeleteProperty(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; !ok {
		return apperrors.NotFound("property", id)
	}
	delete(c.records, id)
	c.order = slices.DeleteFunc(c.order, func(v string) bool { return v == id })
	return nil
}

// Len returns the number of listings.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Catalog) snapshot() []domain.PropertyRecord {
	out := make([]domain.PropertyRecord, len(c.order))
	for i, id := range c.order {
		out[i] = c.records[id]
	}
	return out
}
