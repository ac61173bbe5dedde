package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	"github.com/ffimoveis/imoveis/pkg/httputil"
	"github.com/ffimoveis/imoveis/pkg/logger"
)

var panicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_panics_recovered_total",
	Help: "Handler panics turned into 500 responses",
}, []string{"path"})

// Recovery turns a handler panic into a logged INTERNAL_ERROR response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
// When the handler had already started its response only the log line and
// the counter are produced.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				onPanic(l, rec, r, v)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func onPanic(l *slog.Logger, w *statusRecorder, r *http.Request, v any) {
	ctx := r.Context()
	path := routePattern(r, r.URL.Path)
	panicsRecovered.WithLabelValues(path).Inc()

	span := trace.SpanFromContext(ctx)
	span.RecordError(fmt.Errorf("panic: %v", v))
	span.SetStatus(codes.Error, "panic")

	l.ErrorContext(ctx, "panic recovered",
		slog.Any("panic", v),
		slog.String("method", r.Method),
		slog.String("path", path),
		slog.Bool("response_started", w.wroteHeader),
		slog.String("stack", string(debug.Stack())),
	)
	if w.wroteHeader {
		return
	}

	httputil.WriteJSON(w, apperrors.Internal.Status, httputil.Response{
		Error: &httputil.ErrorResponse{
			Code:      apperrors.Internal.Code,
			Message:   apperrors.Internal.Message,
			RequestID: logger.CorrelationIDFromContext(ctx),
		},
	})
}
