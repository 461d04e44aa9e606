package transport

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate-limit defaults, grounded on the teacher's own OAuth HTTP server
// tuning (DefaultIPRateLimit/DefaultIPBurst) for the same per-IP concern,
// generalized here to every HTTP-facing endpoint rather than just OAuth.
const (
	DefaultRateLimitPerSecond = 10
	DefaultRateLimitBurst     = 20
	rateLimiterIdleTTL        = 10 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	seenAt  time.Time
}

// IPRateLimiter enforces a token-bucket limit per client IP, with a
// background sweep evicting buckets idle past rateLimiterIdleTTL so the map
// doesn't grow unbounded under churn from many distinct clients.
type IPRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	trustHops int // number of X-Forwarded-For hops to trust, 0 = use RemoteAddr only
}

// NewIPRateLimiter creates a limiter. trustHops selects which hop of a
// comma-separated X-Forwarded-For header is treated as the client address;
// 0 means the header is ignored entirely and RemoteAddr is authoritative.
func NewIPRateLimiter(perSecond float64, burst, trustHops int) *IPRateLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRateLimitPerSecond
	}
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}
	return &IPRateLimiter{
		limiters:  make(map[string]*limiterEntry),
		rps:       rate.Limit(perSecond),
		burst:     burst,
		trustHops: trustHops,
	}
}

// clientIP extracts the caller's address per the configured trust-proxy
// policy.
func (l *IPRateLimiter) clientIP(r *http.Request) string {
	if l.trustHops > 0 {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			idx := len(hops) - l.trustHops
			if idx >= 0 && idx < len(hops) {
				return strings.TrimSpace(hops[idx])
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *IPRateLimiter) allow(r *http.Request) (allowed bool, remaining int, resetIn time.Duration) {
	ip := l.clientIP(r)

	l.mu.Lock()
	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = e
	}
	e.seenAt = time.Now()
	lim := e.limiter
	l.mu.Unlock()

	ok = lim.Allow()
	tokens := int(lim.Tokens())
	if tokens < 0 {
		tokens = 0
	}
	return ok, tokens, time.Duration(float64(time.Second) / float64(l.rps))
}

// Sweep evicts buckets that have not been touched within rateLimiterIdleTTL.
// Callers run this periodically from a background goroutine.
func (l *IPRateLimiter) Sweep() {
	cutoff := time.Now().Add(-rateLimiterIdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.limiters {
		if e.seenAt.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// Middleware enforces the limit, writing standard draft rate-limit headers
// and a 429 with Retry-After when exceeded.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetIn := l.allow(r)
		w.Header().Set("RateLimit-Limit", strconv.Itoa(l.burst))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(resetIn.Seconds())))
			http.Error(w, `{"error":"rate_limit_exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
