package main

import (
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool holds one token bucket per identity. Sends are the only
// rate-limited operation; pulls and acks are how a device catches up
// and must not be throttled into mailbox bloat.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		m:     make(map[string]*rate.Limiter),
		rps:   rps,
		burst: burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// AllowUser reports whether the identity may send right now.
func (p *limiterPool) AllowUser(userID int64) bool {
	return p.get(strconv.FormatInt(userID, 10)).Allow()
}
