package core

import (
	"context"
	"errors"
	"net"
	"regexp"
	"time"

	"github.com/sethvargo/go-retry"
)

var transientPattern = regexp.MustCompile(
	`(?i)(rate.?limit|too many requests|\b429\b|\b50[0234]\b|timeout|timed out|temporarily|try again|` +
		`unavailable|overloaded|connection reset|connection refused|broken pipe|unexpected eof)`,
)

// CallPolicy bounds a single outbound call: a timeout per attempt plus
// exponential backoff between attempts. Attempts is the number of retries
// after the first call; zero disables retry.
type CallPolicy struct {
	Timeout    time.Duration
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Jitter     time.Duration
}

func (p CallPolicy) backoff() retry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	attempts := p.Attempts
	if attempts < 0 || attempts > 100 {
		attempts = 0
	}
	return retry.WithMaxRetries(uint64(attempts), b) // #nosec G115 -- bounded above
}

// Call runs fn under the policy. Only transient failures are retried, and a
// cancelled parent context stops further attempts.
func Call(ctx context.Context, p CallPolicy, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether err looks like a rate limit or a network blip.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return transientPattern.MatchString(err.Error())
}
