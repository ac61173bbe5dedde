// Package bounds derives the global price extent of the listing catalog.
package bounds

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
)

// Origin tells where a resolved Bounds value came from.
type Origin string

const (
	OriginAggregate Origin = "aggregate"
	OriginDataset   Origin = "dataset"
	OriginDefault   Origin = "default"
)

// Resolve computes the min/max price over records. An empty dataset yields
// domain.DefaultBounds.
func Resolve(records []domain.PropertyRecord) domain.Bounds {
	if b, ok := catalog.BoundsOf(records); ok {
		return b
	}
	return domain.DefaultBounds
}

// Placeholder is used before any data has arrived. The coordinator
// reconciles it once real bounds are known.
func Placeholder() domain.Bounds {
	return domain.DefaultBounds
}

// Resolver asks the catalog for its price aggregate and falls back to the
// dataset, then to the default. Failures are logged and never returned.
type Resolver struct {
	source catalog.Source
	logger *slog.Logger
}

// NewResolver creates a Resolver over source.
func NewResolver(source catalog.Source, logger *slog.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the best bounds currently obtainable.
func (r *Resolver) Resolve(ctx context.Context) (domain.Bounds, Origin) {
	b, err := r.source.FetchPriceBounds(ctx)
	switch {
	case err == nil && valid(b):
		return domain.NewBounds(b.Min, b.Max), OriginAggregate
	case err == nil:
		r.logger.WarnContext(ctx, "catalog returned unusable price bounds",
			slog.Float64("min", b.Min),
			slog.Float64("max", b.Max),
		)
	case errors.Is(err, catalog.ErrNoPrices):
		r.logger.DebugContext(ctx, "catalog has no priced listings")
	default:
		r.logger.WarnContext(ctx, "fetch price bounds failed, deriving from dataset",
			slog.String("error", catalog.FetchFailure("price bounds", err).Error()),
		)
	}

	records, err := r.source.FetchAllProperties(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "fetch properties for bounds failed, using default bounds",
			slog.String("error", catalog.FetchFailure("properties", err).Error()),
		)
		return domain.DefaultBounds, OriginDefault
	}
	if len(records) == 0 {
		return domain.DefaultBounds, OriginDefault
	}
	return Resolve(records), OriginDataset
}

func valid(b domain.Bounds) bool {
	for _, v := range []float64{b.Min, b.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}
