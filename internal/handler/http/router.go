package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ffimoveis/imoveis/internal/service"
	"github.com/ffimoveis/imoveis/pkg/health"
	"github.com/ffimoveis/imoveis/pkg/middleware"
)

// serviceName labels HTTP metrics and spans.
const serviceName = "listings"

// RouterConfig holds the tunables of the HTTP surface.
type RouterConfig struct {
	CORS middleware.CORSConfig
	// CacheMaxAge is the Cache-Control max-age of read endpoints. Zero
	// disables the header.
	CacheMaxAge time.Duration
	// PprofCIDRs may reach /debug/pprof. Empty denies everyone.
	PprofCIDRs []string
	// RateLimit applies per client to /api/v1. The zero value disables it.
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all listing routes registered.
func NewRouter(
	listingService *service.ListingService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.MountProfiler(r, cfg.PprofCIDRs, logger)

	h := NewListingHandler(listingService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, logger))
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			if cfg.CacheMaxAge > 0 {
				r.Use(middleware.CacheControl(cfg.CacheMaxAge))
			}
			r.Get("/properties", h.SearchProperties)
			r.Get("/properties/bounds", h.GetBounds)
			r.Get("/properties/{id}", h.GetProperty)
			r.Get("/locations", h.ListLocations)
			r.Get("/locations/{id}/neighborhoods", h.ListNeighborhoods)
			r.Get("/property-types", h.ListPropertyTypes)
		})

		r.Put("/properties/{id}", h.UpsertProperty)
		r.Delete("/properties/{id}", h.DeleteProperty)
	})

	return r
}
