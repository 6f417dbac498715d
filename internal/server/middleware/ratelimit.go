package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default per-client API limits. The API is read-mostly and cheap; the
// limiter exists to stop a misbehaving dashboard from hammering the
// simulation endpoints.
const (
	DefaultRatePerSec = 20
	DefaultBurst      = 40
)

// clientLimiter pairs a token bucket with its last-seen time so idle
// entries can be evicted.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns middleware that applies in-process per-client-IP rate
// limiting using token buckets. Entries idle for more than ten minutes are
// evicted on the next sweep.
func RateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
	)

	sweep := func(now time.Time) {
		for ip, c := range clients {
			if now.Sub(c.lastSeen) > 10*time.Minute {
				delete(clients, ip)
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r)
			now := time.Now()

			mu.Lock()
			c, ok := clients[ip]
			if !ok {
				c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
				clients[ip] = c
				if len(clients)%256 == 0 {
					sweep(now)
				}
			}
			c.lastSeen = now
			allowed := c.limiter.Allow()
			mu.Unlock()

			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	// Check X-Forwarded-For first (may contain multiple IPs).
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	// Check X-Real-IP.
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
