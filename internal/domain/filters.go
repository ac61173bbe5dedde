package domain

// DefaultMaxPrice is the ceiling of DefaultBounds.
const DefaultMaxPrice = 10_000_000

// Bounds is the global price extent of a dataset snapshot.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultBounds is used when no dataset is available so that the price
// range control stays usable.
var DefaultBounds = Bounds{Min: 0, Max: DefaultMaxPrice}

// NewBounds builds Bounds, swapping the edges if they are inverted.
func NewBounds(lo, hi float64) Bounds {
	if lo > hi {
		lo, hi = hi, lo
	}
	return Bounds{Min: lo, Max: hi}
}

// Clamp returns v limited to [Min, Max].
func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// FullRange returns the price range spanning the whole extent.
func (b Bounds) FullRange() PriceRange {
	return PriceRange{Low: b.Min, High: b.Max}
}

// Contains reports whether v lies within the bounds, inclusive.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// PriceRange is an inclusive [Low, High] price interval.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ClampTo returns the range limited to b with Low <= High.
func (r PriceRange) ClampTo(b Bounds) PriceRange {
	lo, hi := r.Low, r.High
	if lo > hi {
		lo, hi = hi, lo
	}
	return PriceRange{Low: b.Clamp(lo), High: b.Clamp(hi)}
}

// SearchFilters is the complete filter state. Empty Query, PropertyType and
// LocationID mean "no constraint"; PriceRange is always set.
type SearchFilters struct {
	Query        string       `json:"query"`
	PropertyType PropertyType `json:"property_type"`
	LocationID   string       `json:"location_id"`
	PriceRange   PriceRange   `json:"price_range"`
}

// DefaultFilters returns the cleared filter set for the given bounds.
func DefaultFilters(b Bounds) SearchFilters {
	return SearchFilters{PriceRange: b.FullRange()}
}

// IsDefault reports whether f constrains nothing relative to b.
func (f SearchFilters) IsDefault(b Bounds) bool {
	return f == DefaultFilters(b)
}
