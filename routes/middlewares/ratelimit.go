package middlewares

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
)

const limiterIdle = 2 * time.Hour

type ipLimiter struct {
	limiter    *rate.Limiter
	lastActive time.Time
}

type ipLimiters struct {
	mu        sync.Mutex
	perMinute int
	limiters  map[string]*ipLimiter
	lastSweep time.Time
}

// RateLimit allows perMinute requests per client IP, with bursts of the same
// size. Zero disables limiting. Run it after middleware.RealIP.
func RateLimit(perMinute uint) func(http.Handler) http.Handler {
	if perMinute == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	l := &ipLimiters{
		perMinute: int(perMinute),
		limiters:  map[string]*ipLimiter{},
		lastSweep: time.Now(),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r), time.Now()) {
				httpx.LogStatus(w, r, http.StatusTooManyRequests, log.InfoLevel, "request.rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *ipLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdle {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastActive) > limiterIdle {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.limiters[ip] = entry
	}
	entry.lastActive = now
	return entry.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
