package api

import (
	"math"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter rate-limits per client: the x-user-id forwarded by the
// Gateway when present, the remote host otherwise.
type clientLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

func newClientLimiter(reqPerSec float64, burst int) *clientLimiter {
	return &clientLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(reqPerSec),
		b: burst,
	}
}

func burstFor(reqPerSec float64) int {
	return max(1, int(math.Ceil(reqPerSec)))
}

func (cl *clientLimiter) limiterFor(client string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if lim, ok := cl.m[client]; ok {
		return lim
	}
	lim := rate.NewLimiter(cl.r, cl.b)
	cl.m[client] = lim
	return lim
}

func (cl *clientLimiter) allow(r *http.Request) bool {
	return cl.limiterFor(clientKey(r)).Allow()
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get("x-user-id"); id != "" {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limited rejects the request with 429 once the client exceeds its rate.
func (h *Handler) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.allow(r) {
			w.Header().Set("Retry-After", "1")
			jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
