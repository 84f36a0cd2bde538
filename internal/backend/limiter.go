package backend

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// Per-key rate limiter pool.
type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	lastSweep time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{m: map[string]*limiterEntry{}, rps: rps, burst: burst}
}

// get limiter for key, create if missing; idle entries are swept on access
func (p *limiterPool) get(key string) *rate.Limiter {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Sub(p.lastSweep) > limiterIdleTTL {
		cutoff := now.Add(-limiterIdleTTL)
		for k, e := range p.m {
			if e.lastSeen.Before(cutoff) {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}

// wait blocks until key may issue a request or ctx is done.
func (p *limiterPool) wait(ctx context.Context, key string) error {
	if p == nil || p.rps <= 0 {
		return nil
	}
	return p.get(key).Wait(ctx)
}
