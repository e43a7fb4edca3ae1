package microapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Rate            float64               // requests per second
	Burst           int                   // max burst
	KeyFunc         func(*Context) string // default: client IP
	CleanupInterval time.Duration         // how often to prune idle limiters (default: 1m)
	MaxIdle         time.Duration         // remove limiters idle longer than this (default: 5m)
}

// RateLimit returns a use handler that applies per-key rate limiting.
// Declare it with Use to guard a tree level. Limited requests fail with 429
// and a Retry-After header.
func RateLimit(cfg RateLimitConfig) UseHandler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5 * time.Minute
	}

	retryAfter := "1"
	if cfg.Rate > 0 && cfg.Rate < 1 {
		retryAfter = strconv.FormatFloat(1/cfg.Rate, 'f', 0, 64)
	}

	var (
		mu          sync.Mutex
		limiters    = make(map[string]*limiterEntry)
		lastCleanup time.Time
	)

	return func(c *Context) error {
		key := cfg.KeyFunc(c)

		mu.Lock()
		now := time.Now()

		// Lazy cleanup of expired limiters.
		if now.Sub(lastCleanup) >= cfg.CleanupInterval {
			for k, e := range limiters {
				if now.Sub(e.lastSeen) > cfg.MaxIdle {
					delete(limiters, k)
				}
			}
			lastCleanup = now
		}

		entry, ok := limiters[key]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
			}
			limiters[key] = entry
		}
		entry.lastSeen = now
		mu.Unlock()

		if !entry.limiter.Allow() {
			c.Response.Header.Set("Retry-After", retryAfter)
			return Fail(http.StatusTooManyRequests, &HTTPError{
				Status:  http.StatusTooManyRequests,
				Message: http.StatusText(http.StatusTooManyRequests),
			})
		}
		return nil
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func clientIP(c *Context) string {
	raw := c.Request.Raw()
	if raw == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(raw.RemoteAddr)
	if err != nil {
		return raw.RemoteAddr
	}
	return host
}
