package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Outbox runs best-effort side effects that must not participate in a
// relational transaction, such as vector-index deletes after a document or
// collection is removed. Jobs are submitted after the relational commit
// succeeds, retried with backoff on their own schedule, and their failure
// is logged but never surfaced to the committing caller.
type Outbox struct {
	pool        *ants.Pool
	wg          sync.WaitGroup
	maxAttempts int
	baseDelay   time.Duration
	jobTimeout  time.Duration
	logger      *slog.Logger
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithOutboxRetries sets the per-job attempt budget. Default is 3.
func WithOutboxRetries(maxAttempts int, baseDelay time.Duration) OutboxOption {
	return func(o *Outbox) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			o.baseDelay = baseDelay
		}
	}
}

// WithOutboxLogger sets a custom logger. Default is slog.Default().
func WithOutboxLogger(logger *slog.Logger) OutboxOption {
	return func(o *Outbox) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOutbox creates an outbox backed by a worker pool of the given size.
// A non-positive size defaults to half the CPU count, minimum 1.
func NewOutbox(size int, opts ...OutboxOption) (*Outbox, error) {
	if size < 1 {
		size = runtime.NumCPU() / 2
		if size < 1 {
			size = 1
		}
	}

	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	o := &Outbox{
		pool:        pool,
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
		jobTimeout:  30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "outbox")
	return o, nil
}

// Submit enqueues one side effect. The job runs asynchronously with its
// own context and retry budget; submission only fails if the pool itself
// rejects the job.
func (o *Outbox) Submit(name string, job func(ctx context.Context) error) error {
	o.wg.Add(1)
	err := o.pool.Submit(func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.jobTimeout)
		defer cancel()

		err := RetryWithBackoff(ctx, func() error { return job(ctx) }, o.maxAttempts, o.baseDelay)
		if err != nil {
			o.logger.Error("outbox job failed permanently", "job", name, "err", err)
			return
		}
		o.logger.Debug("outbox job done", "job", name)
	})
	if err != nil {
		o.wg.Done()
		return err
	}
	return nil
}

// Drain blocks until every submitted job has finished.
func (o *Outbox) Drain() {
	o.wg.Wait()
}

// Close drains in-flight jobs and releases the worker pool.
func (o *Outbox) Close() {
	o.wg.Wait()
	o.pool.Release()
}
