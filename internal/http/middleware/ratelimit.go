package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientInfo struct {
	limiter *rate.Limiter
	last    time.Time
}

const maxLocalClients = 10000

var (
	rlMu    sync.Mutex
	clients = make(map[string]*clientInfo)
)

// allowLocal is the in-process token bucket used when Redis is unavailable:
// maxRequests per window with a burst of maxRequests. It also returns the
// whole tokens left.
func allowLocal(key string, maxRequests int, window time.Duration) (bool, int64) {
	now := time.Now()

	rlMu.Lock()
	defer rlMu.Unlock()

	ci, ok := clients[key]
	if !ok {
		if len(clients) >= maxLocalClients {
			sweepLocked(now, window)
		}
		every := window / time.Duration(max(maxRequests, 1))
		ci = &clientInfo{limiter: rate.NewLimiter(rate.Every(every), maxRequests)}
		clients[key] = ci
	}
	ci.last = now
	ok = ci.limiter.AllowN(now, 1)
	return ok, max(0, int64(ci.limiter.TokensAt(now)))
}

func sweepLocked(now time.Time, window time.Duration) {
	for k, ci := range clients {
		if now.Sub(ci.last) > 10*window {
			delete(clients, k)
		}
	}
}
