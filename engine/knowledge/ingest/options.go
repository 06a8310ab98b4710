package ingest

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize       = 50
	DefaultInterBatchDelay = time.Second
)

// Limiter gates calls to the embedding provider and the store.
// *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Progress is a running tally reported after every chunk.
type Progress struct {
	Total     int
	Attempted int
	Stored    int
	Failed    int
}

// Options controls batching and backpressure. A zero InterBatchDelay disables
// the pause between batches; use DefaultOptions for the stock values.
type Options struct {
	BatchSize       int
	InterBatchDelay time.Duration
	Concurrency     int
	Limiter         Limiter
	Progress        func(Progress)
}

func DefaultOptions() Options {
	return Options{
		BatchSize:       DefaultBatchSize,
		InterBatchDelay: DefaultInterBatchDelay,
		Concurrency:     1,
	}
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.InterBatchDelay < 0 {
		o.InterBatchDelay = 0
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// NewRateLimiter returns a token bucket allowing rps calls per second. A
// non-positive rps means unlimited and yields nil.
func NewRateLimiter(rps float64, burst int) Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
