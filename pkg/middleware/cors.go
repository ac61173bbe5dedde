package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Accept", "Content-Type", CorrelationIDHeader, SearchGenerationHeader}
)

const defaultCORSMaxAge = 3600

// CORSConfig configures CORS. Zero-valued lists and MaxAge take the defaults
// of DefaultCORSConfig.
type CORSConfig struct {
	// AllowedOrigins lists exact origins; "*" admits any.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	MaxAge           int // seconds
	AllowCredentials bool
	// Environment "development" admits any origin.
	Environment string
}

// DefaultCORSConfig admits any origin: listing searches are public and their
// URLs are meant to be shared.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: slices.Clone(defaultCORSMethods),
		AllowedHeaders: slices.Clone(defaultCORSHeaders),
		ExposedHeaders: []string{CorrelationIDHeader},
		MaxAge:         defaultCORSMaxAge,
		Environment:    "development",
	}
}

type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]bool
	credentials bool
	fixed       http.Header
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	methods := orDefault(cfg.AllowedMethods, defaultCORSMethods)
	headers := orDefault(cfg.AllowedHeaders, defaultCORSHeaders)
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = defaultCORSMaxAge
	}

	p := &corsPolicy{
		anyOrigin:   cfg.Environment == "development" || slices.Contains(cfg.AllowedOrigins, "*"),
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		fixed:       http.Header{},
	}
	for _, o := range cfg.AllowedOrigins {
		p.origins[strings.TrimSpace(o)] = true
	}

	p.fixed.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	p.fixed.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	p.fixed.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	if len(cfg.ExposedHeaders) > 0 {
		p.fixed.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposedHeaders, ", "))
	}
	if cfg.AllowCredentials {
		p.fixed.Set("Access-Control-Allow-Credentials", "true")
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin and
// whether it depends on the request. Browsers refuse "*" on credentialed
// requests, so the origin is echoed instead.
func (p *corsPolicy) allowOrigin(origin string) (value string, varies bool) {
	switch {
	case p.anyOrigin && p.credentials && origin != "":
		return origin, true
	case p.anyOrigin:
		return "*", false
	case origin != "" && p.origins[origin]:
		return origin, true
	default:
		return "", false
	}
}

// CORS answers preflight requests with 204 and decorates every other
// response with the configured CORS headers.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if value, varies := p.allowOrigin(r.Header.Get("Origin")); value != "" {
				h.Set("Access-Control-Allow-Origin", value)
				if varies {
					h.Add("Vary", "Origin")
				}
			}
			for k, v := range p.fixed {
				h[k] = v
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}
