// Package limiter is a thin per-IP request-rate guard for the HTTP batch
// adapter. It owns request-rate shedding only — concurrency admission
// belongs to the Admission Queue, so there is no concurrent-execution
// counter here (the teacher's version conflated the two).
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/itstheanurag/executioner/internal/metrics"
)

// RateLimiter enforces a global request rate plus a per-IP request rate.
type RateLimiter struct {
	global *rate.Limiter

	mu      sync.Mutex
	perIP   map[string]*rate.Limiter
	ipRate  rate.Limit
	ipBurst int
}

// New builds a RateLimiter. globalRPS bounds total admitted requests/sec
// across all callers; perIPRPS/perIPBurst bound a single caller's burst.
func New(globalRPS, perIPRPS float64, perIPBurst int) *RateLimiter {
	return &RateLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS)*2),
		perIP:   make(map[string]*rate.Limiter),
		ipRate:  rate.Limit(perIPRPS),
		ipBurst: perIPBurst,
	}
}

func (rl *RateLimiter) ipLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.perIP[ip]; ok {
		return l
	}
	l := rate.NewLimiter(rl.ipRate, rl.ipBurst)
	rl.perIP[ip] = l
	return l
}

// Allow reports whether a request from ip may proceed right now.
func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.global.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.ipLimiter(ip).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

// StartCleanup periodically drops all tracked per-IP limiters so memory
// doesn't grow unbounded over the life of the process. It stops when ctx
// is cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.mu.Lock()
				rl.perIP = make(map[string]*rate.Limiter)
				rl.mu.Unlock()
			}
		}
	}()
}
