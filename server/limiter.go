package server

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ipLimiter rate limits new connections per remote host. Idle entries
// expire from the cache.
type ipLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

// newIPLimiter returns nil, which allows everything, when perSecond <= 0.
func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache.New(30*time.Minute, 5*time.Minute),
	}
}

func (l *ipLimiter) Allow(host string) bool {
	if l == nil {
		return true
	}
	return l.get(host).Allow()
}

func (l *ipLimiter) get(host string) *rate.Limiter {
	if v, found := l.limiters.Get(host); found {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(host, limiter, cache.DefaultExpiration); err != nil {
		// Lost the race to another connection from the same host.
		if v, found := l.limiters.Get(host); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}
