package release

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig controls the capped exponential backoff applied to
// transient network failures. 4xx protocol errors are never retried.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultRetryConfig mirrors the backoff ampup uses for release API and
// asset-download calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
		Multiplier:   2.0,
	}
}

// isTransient reports whether err looks like a retriable transport
// failure: connection resets, DNS failures, timeouts, or a wrapped
// *HTTPError with a 5xx status. 4xx and protocol errors return false.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"i/o timeout",
		"network is unreachable",
		"no route to host",
		"eof",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// withRetry runs fn with capped exponential backoff, retrying only
// transient network errors. ctx cancellation aborts immediately.
func withRetry(ctx context.Context, log *zerolog.Logger, name string, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		log.Warn().Err(err).Str("operation", name).Int("attempt", attempt).
			Dur("nextRetryIn", delay).Msg("transient error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
