package restapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"oncycle.org/delay-api/internal/models"
	"oncycle.org/delay-api/internal/utils"
)

// RateLimitMiddleware provides per-client rate limiting. Clients are told
// apart by API key when they send one, otherwise by address.
type RateLimitMiddleware struct {
	limiters    map[string]*rate.Limiter
	mu          sync.RWMutex
	rateLimit   rate.Limit
	burstSize   int
	refill      time.Duration
	cleanupTick *time.Ticker
	done        chan struct{}
	stopOnce    sync.Once
	exemptPaths []string
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
// ratePerSecond requests are allowed per interval per client, in bursts of
// the same size. Zero disables limiting.
func NewRateLimitMiddleware(ratePerSecond int, interval time.Duration) *RateLimitMiddleware {
	rateLimit := rate.Inf
	var refill time.Duration
	if ratePerSecond > 0 {
		refill = interval / time.Duration(ratePerSecond)
		rateLimit = rate.Every(refill)
	}

	rl := &RateLimitMiddleware{
		limiters:    make(map[string]*rate.Limiter),
		rateLimit:   rateLimit,
		burstSize:   ratePerSecond,
		refill:      refill,
		cleanupTick: time.NewTicker(5 * time.Minute),
		done:        make(chan struct{}),
		// probes and scrapers must never be throttled
		exemptPaths: []string{"/health", metricsPath},
	}

	go rl.cleanup()

	return rl
}

// getLimiter gets or creates a rate limiter for the given client
func (rl *RateLimitMiddleware) getLimiter(client string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[client]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.limiters[client]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
	rl.limiters[client] = limiter

	return limiter
}

func (rl *RateLimitMiddleware) exempt(path string) bool {
	for _, p := range rl.exemptPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler is the HTTP middleware function
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rateLimit == rate.Inf || rl.exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getLimiter(utils.ClientKey(r)).Allow() {
			rl.sendRateLimitExceeded(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sendRateLimitExceeded sends a 429 Too Many Requests response
func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter) {
	// one token's worth of time, never less than a second
	retryAfter := int(math.Ceil(rl.refill.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(models.DetailResponse{
		Detail: "Rate limit exceeded. Please try again later.",
	})
}

// cleanup periodically drops limiters that are full again, i.e. clients
// that have been idle long enough to regain their whole burst.
func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.cleanupTick.C:
			rl.mu.Lock()
			for key, limiter := range rl.limiters {
				if limiter.Tokens() >= float64(rl.burstSize) {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTick.Stop()
		close(rl.done)
	})
}
