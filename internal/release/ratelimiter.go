package release

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// rateLimiter tracks the release host's advertised remaining-request
// budget and pre-emptively pauses once it is exhausted, rather than
// waiting to be rejected with a 403/429.
type rateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
	known     bool
	log       *zerolog.Logger
}

func newRateLimiter(log *zerolog.Logger) *rateLimiter {
	return &rateLimiter{log: log}
}

// wait blocks until the budget is believed to allow another request.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	known := r.known
	remaining := r.remaining
	resetAt := r.resetAt
	r.mu.Unlock()

	if !known || remaining > 0 {
		return nil
	}

	delay := time.Until(resetAt)
	if delay <= 0 {
		return nil
	}

	r.log.Warn().Dur("pauseFor", delay).Msg("rate limit exhausted, pausing before next request")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// observe updates the tracked budget from a response's rate-limit headers.
// Missing or unparsable headers leave the tracker in its current state.
func (r *rateLimiter) observe(resp *http.Response) {
	remainingHdr := resp.Header.Get("X-RateLimit-Remaining")
	resetHdr := resp.Header.Get("X-RateLimit-Reset")
	if remainingHdr == "" || resetHdr == "" {
		return
	}

	remaining, err := strconv.Atoi(remainingHdr)
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(resetHdr, 10, 64)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetAt = time.Unix(resetUnix, 0)
	r.known = true
}
