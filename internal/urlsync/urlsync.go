// Package urlsync converts search filters to and from shareable URL query
// parameters. Parameters equal to their default are never emitted, and
// malformed parameters fall back to the default instead of failing.
package urlsync

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/ffimoveis/imoveis/internal/domain"
)

// Recognized query parameters.
const (
	ParamQuery    = "q"
	ParamType     = "tipo"
	ParamLocation = "local"
	ParamMinPrice = "min_price"
	ParamMaxPrice = "max_price"
)

// paramOrder is the order Encode emits parameters in.
var paramOrder = []string{ParamQuery, ParamType, ParamLocation, ParamMinPrice, ParamMaxPrice}

// Parse reconstructs filters from values. Missing or malformed parameters map
// to the field default: empty text, or the bounds edge for prices. An
// inverted price pair resets both edges; the result is clamped into b.
func Parse(values url.Values, b domain.Bounds) domain.SearchFilters {
	f := domain.SearchFilters{
		Query:        values.Get(ParamQuery),
		PropertyType: domain.ParsePropertyType(values.Get(ParamType)),
		LocationID:   values.Get(ParamLocation),
		PriceRange:   b.FullRange(),
	}

	lo, hasLo := parsePrice(values.Get(ParamMinPrice))
	hi, hasHi := parsePrice(values.Get(ParamMaxPrice))
	if hasLo && hasHi && lo > hi {
		return f
	}
	if hasLo {
		f.PriceRange.Low = lo
	}
	if hasHi {
		f.PriceRange.High = hi
	}
	f.PriceRange = f.PriceRange.ClampTo(b)
	return f
}

// ParseQuery parses a raw query string, with or without the leading "?".
// Pairs that cannot be decoded are skipped.
func ParseQuery(raw string, b domain.Bounds) domain.SearchFilters {
	values, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	return Parse(values, b)
}

// Serialize emits only the parameters that differ from their default.
func Serialize(f domain.SearchFilters, b domain.Bounds) url.Values {
	values := url.Values{}
	if f.Query != "" {
		values.Set(ParamQuery, f.Query)
	}
	if f.PropertyType != "" {
		values.Set(ParamType, string(f.PropertyType))
	}
	if f.LocationID != "" {
		values.Set(ParamLocation, f.LocationID)
	}
	if f.PriceRange.Low > b.Min {
		values.Set(ParamMinPrice, FormatPrice(f.PriceRange.Low))
	}
	if f.PriceRange.High < b.Max {
		values.Set(ParamMaxPrice, FormatPrice(f.PriceRange.High))
	}
	return values
}

// Encode returns the escaped query string for f, with parameters in a fixed
// order. Cleared filters encode to "".
func Encode(f domain.SearchFilters, b domain.Bounds) string {
	values := Serialize(f, b)
	var sb strings.Builder
	for _, key := range paramOrder {
		v, ok := values[key]
		if !ok || len(v) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(v[0]))
	}
	return sb.String()
}

// FormatPrice renders whole prices without decimals.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parsePrice accepts finite non-negative numbers only.
func parsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
