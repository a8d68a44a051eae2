package debounce

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepThreshold = 1024

// KeyedThrottle lets one action per key through every interval and absorbs
// the duplicates. Keys are independent of each other.
type KeyedThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*keyLimiter
}

type keyLimiter struct {
	lim  *rate.Limiter
	last time.Time
}

// NewKeyedThrottle creates a throttle allowing one event per key per interval.
func NewKeyedThrottle(interval time.Duration) *KeyedThrottle {
	return &KeyedThrottle{
		interval: interval,
		limiters: make(map[string]*keyLimiter),
	}
}

// Allow reports whether the action for key may proceed now.
func (k *KeyedThrottle) Allow(key string) bool {
	return k.AllowAt(key, time.Now())
}

// AllowAt is Allow at an explicit instant.
func (k *KeyedThrottle) AllowAt(key string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.limiters) >= sweepThreshold {
		k.sweep(now)
	}

	kl, ok := k.limiters[key]
	if !ok {
		kl = &keyLimiter{lim: rate.NewLimiter(rate.Every(k.interval), 1)}
		k.limiters[key] = kl
	}
	kl.last = now
	return kl.lim.AllowN(now, 1)
}

// sweep forgets keys idle long enough for their bucket to be full again.
func (k *KeyedThrottle) sweep(now time.Time) {
	for key, kl := range k.limiters {
		if now.Sub(kl.last) > k.interval {
			delete(k.limiters, key)
		}
	}
}
