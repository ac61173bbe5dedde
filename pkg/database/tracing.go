package database

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

const tracerName = "github.com/ffimoveis/imoveis/pkg/database"

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "db_query_duration_seconds",
	Help:    "Catalog query latency by operation and outcome",
	Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"operation", "outcome"})

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowLog atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging logs a warning for every statement that takes at least
// threshold. A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowLog.Store(nil)
		return
	}
	slowLog.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// TraceQuery opens a client span for one catalog statement and returns the
// function that closes it:
//
//	ctx, end := database.TraceQuery(ctx, "GetProperty", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		result := outcome(err)
		span.SetAttributes(attribute.String("db.outcome", result))
		if result == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		queryDuration.WithLabelValues(operation, result).Observe(elapsed.Seconds())

		if l := slowLog.Load(); l != nil && elapsed >= l.threshold {
			attrs := []any{
				slog.String("operation", operation),
				slog.String("statement", statement),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			l.logger.WarnContext(ctx, "slow query detected", attrs...)
		}
	}
}

// outcome keeps a missing row apart from a failed statement: a lookup for an
// unknown listing id is an answer, not an error.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, apperrors.ErrNotFound):
		return "no_rows"
	default:
		return "error"
	}
}
