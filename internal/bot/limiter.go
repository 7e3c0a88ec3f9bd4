package bot

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// maxLimiters caps the pool; past it the pool starts over, which at worst
// hands a flooding nick a fresh burst.
const maxLimiters = 4096

// limiterPool keeps one token bucket per nickname.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{rps: rps, burst: burst}
}

func (p *limiterPool) get(nick string) *rate.Limiter {
	key := strings.ToLower(nick)
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	if p.m == nil || len(p.m) >= maxLimiters {
		p.m = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether nick may run another command now. A nil pool allows
// everything.
func (p *limiterPool) Allow(nick string) bool {
	if p == nil {
		return true
	}
	return p.get(nick).Allow()
}
