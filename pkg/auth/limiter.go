package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Gateway request budget applied when the config leaves the limiter
// unset. Generous enough for interactive clients, still a backstop
// against a misbehaving key.
const (
	defaultGatewayRPS   = 5
	defaultGatewayBurst = 10
)

// limiterPool keeps one token bucket per api key (or remote ip for
// unauthenticated callers). The bucket rate is resolved once at
// construction.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultGatewayRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultGatewayBurst
	}
	return &limiterPool{
		m:     make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.m[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.m[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
