package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ffimoveis/imoveis/pkg/logger"
)

const (
	// CorrelationIDHeader carries the request correlation id in both
	// directions.
	CorrelationIDHeader = "X-Correlation-ID"

	// SearchGenerationHeader is sent by listing clients that number their
	// searches, so server logs can be joined with the client's own.
	SearchGenerationHeader = "X-Search-Generation"
)

// RequestLogging assigns the correlation id and writes one access log line
// per request. The raw query is part of the line: for a listing search it
// is the whole filter state.
func RequestLogging(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(CorrelationIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(CorrelationIDHeader, id)
			ctx := logger.WithCorrelationID(r.Context(), id)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			if rec.statusCode >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			l.Log(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("correlation_id", id),
			)
		})
	}
}

// RequestLogger stores a logger carrying correlation_id, search_generation
// and the active span ids in the request context, for handlers to fetch
// with logger.FromContext. Mount it inside RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if gen, ok := searchGeneration(r); ok {
				ctx = logger.WithGeneration(ctx, gen)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// searchGeneration parses SearchGenerationHeader. Malformed values are
// ignored.
func searchGeneration(r *http.Request) (uint64, bool) {
	raw := r.Header.Get(SearchGenerationHeader)
	if raw == "" {
		return 0, false
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	return gen, err == nil
}
