// Package filter evaluates search filters against property records.
package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/ffimoveis/imoveis/internal/domain"
)

// Matcher evaluates one filter set against many records. The query is
// case-folded once. A Matcher is not safe for concurrent use.
type Matcher struct {
	filters domain.SearchFilters
	needle  string
	caser   cases.Caser
}

// NewMatcher prepares a Matcher for f.
func NewMatcher(f domain.SearchFilters) *Matcher {
	caser := cases.Fold()
	return &Matcher{
		filters: f,
		needle:  caser.String(f.Query),
		caser:   caser,
	}
}

// Match reports whether r satisfies every constraint. The cheap numeric
// and identifier checks run before string containment.
func (m *Matcher) Match(r domain.PropertyRecord) bool {
	pr := m.filters.PriceRange
	if r.Price < pr.Low || r.Price > pr.High {
		return false
	}

	if m.filters.PropertyType != "" && r.PropertyType != m.filters.PropertyType {
		return false
	}

	if m.filters.LocationID != "" && r.LocationID != m.filters.LocationID {
		return false
	}

	if m.needle == "" {
		return true
	}
	return m.contains(r.Title) || m.contains(r.NeighborhoodName) || m.contains(r.City)
}

func (m *Matcher) contains(field string) bool {
	return strings.Contains(m.caser.String(field), m.needle)
}

// Matches reports whether r satisfies f.
func Matches(f domain.SearchFilters, r domain.PropertyRecord) bool {
	return NewMatcher(f).Match(r)
}

// Apply returns the records matching f, preserving input order. The result
// is never nil.
func Apply(f domain.SearchFilters, records []domain.PropertyRecord) []domain.PropertyRecord {
	m := NewMatcher(f)
	matched := make([]domain.PropertyRecord, 0, len(records))
	for i := range records {
		if m.Match(records[i]) {
			matched = append(matched, records[i])
		}
	}
	return matched
}
