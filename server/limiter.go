package server

import (
	"net/http"
	"sync"
)

// inFlightLimiter bounds the number of requests served concurrently.
type inFlightLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// newInFlightLimiter creates a limiter. If max == 0, unlimited requests are allowed.
func newInFlightLimiter(max int) *inFlightLimiter {
	return &inFlightLimiter{max: max}
}

// acquire reserves a slot and reports whether one was available.
func (l *inFlightLimiter) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.count >= l.max {
		return false
	}
	l.count++
	return true
}

// release frees a slot reserved by acquire.
func (l *inFlightLimiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count > 0 {
		l.count--
	}
}

// InFlight returns the number of requests currently served.
func (l *inFlightLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many requests may still start, or -1 when unlimited.
func (l *inFlightLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	return l.max - l.count
}

// limit rejects requests with 503 while the limiter is full.
func (l *inFlightLimiter) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.acquire() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "too many requests in flight"})
			return
		}
		defer l.release()
		next(w, r)
	}
}
