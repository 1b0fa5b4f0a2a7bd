package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/kiranshivaraju/framecheck/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = time.Minute
)

// RateLimit caps requests per API key in fixed one-minute windows counted
// in the shared cache.
type RateLimit struct {
	cache cache.Cache
	limit int
}

// NewRateLimit creates a limiter allowing requestsPerMin per key. A
// non-positive value selects the default of 60.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, limit: requestsPerMin}
}

// Limit counts the request against the authenticated key. Requests without
// a principal, and requests arriving while the cache is down, are let
// through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r)
		if !ok || p.Prefix == "" {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(p.Prefix), rateLimitWindow)
		if err != nil {
			slog.Warn("rate limit check failed", "key_prefix", p.Prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		rl.writeHeaders(w, count)
		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitWindow/time.Second)))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", map[string]int{"limit": rl.limit})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) writeHeaders(w http.ResponseWriter, count int64) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.limit)-count, 0), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateLimitWindow).Unix(), 10))
}
