package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/ffimoveis/imoveis/pkg/httputil"
)

var rateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests rejected with 429 by the per-client rate limiter",
})

// RateLimitConfig is a token bucket per client address. RPS <= 0 disables
// limiting.
type RateLimitConfig struct {
	RPS   float64       `env:"RPS" envDefault:"50"`
	Burst int           `env:"BURST" envDefault:"100"`
	Idle  time.Duration `env:"IDLE" envDefault:"3m"`
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// buckets evicts idle clients lazily, at most once per idle period, so no
// background goroutine outlives the router.
type buckets struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	byClient  map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	if cfg.Burst < 1 {
		cfg.Burst = max(1, int(math.Ceil(cfg.RPS)))
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 3 * time.Minute
	}
	return &buckets{cfg: cfg, byClient: make(map[string]*bucket), now: time.Now}
}

// reserve takes a token for client. When none is left it reports how long
// until one is.
func (b *buckets) reserve(client string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) >= b.cfg.Idle {
		for k, v := range b.byClient {
			if now.Sub(v.lastSeen) >= b.cfg.Idle {
				delete(b.byClient, k)
			}
		}
		b.lastSweep = now
	}

	bk, ok := b.byClient[client]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(rate.Limit(b.cfg.RPS), b.cfg.Burst)}
		b.byClient[client] = bk
	}
	bk.lastSeen = now

	r := bk.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (b *buckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byClient)
}

// RateLimit answers 429 RATE_LIMITED with a Retry-After header once a
// client address runs out of tokens. Clients are keyed by RemoteAddr host,
// so put chi's RealIP in front of it behind a trusted proxy.
func RateLimit(cfg RateLimitConfig, l *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return rateLimit(newBuckets(cfg), l)
}

func rateLimit(b *buckets, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := r.RemoteAddr
			if addr, ok := clientAddr(r.RemoteAddr); ok {
				client = addr.String()
			}

			ok, wait := b.reserve(client)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			rateLimited.Inc()
			l.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", client),
				slog.String("path", r.URL.Path),
				slog.Duration("retry_after", wait),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
			})
		})
	}
}
