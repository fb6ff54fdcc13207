package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a token bucket per client IP
type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	rate         float64 // tokens per second
	burst        float64
	maxCacheSize int
	now          func() time.Time
	stop         chan struct{}
	stopOnce     sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimiter allows rate requests per second per IP with bursts of burst
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		buckets:      make(map[string]*bucket),
		rate:         rate,
		burst:        float64(burst),
		maxCacheSize: 10000,
		now:          time.Now,
		stop:         make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow takes one token from ip's bucket
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[ip]
	if !ok {
		if len(rl.buckets) >= rl.maxCacheSize {
			rl.evictIdle(now)
		}
		b = &bucket{tokens: rl.burst, lastSeen: now}
		rl.buckets[ip] = b
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.lastSeen).Seconds()*rl.rate)
	b.lastSeen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// idle returns how long a bucket takes to refill completely
func (rl *RateLimiter) idle() time.Duration {
	if rl.rate <= 0 {
		return time.Hour
	}
	return time.Duration(rl.burst / rl.rate * float64(time.Second))
}

// evictIdle drops full buckets, then a tenth of the rest if still too big
func (rl *RateLimiter) evictIdle(now time.Time) {
	limit := rl.idle()
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > limit {
			delete(rl.buckets, ip)
		}
	}
	if len(rl.buckets) >= rl.maxCacheSize {
		toRemove := len(rl.buckets) / 10
		for ip := range rl.buckets {
			if toRemove == 0 {
				break
			}
			delete(rl.buckets, ip)
			toRemove--
		}
	}
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// clientIP uses the TCP peer address; X-Forwarded-For is not trusted
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			rl.evictIdle(rl.now())
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}
