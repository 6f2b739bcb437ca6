// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package taskqueue runs deferred work submitted by papps on a shared worker
// pool. Papps never start workers of their own; each gets a Client bound to
// its name when it is loaded.
package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Defaults for Queue options.
const (
	DefaultWorkers    = 4
	DefaultCapacity   = 256
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
)

// TaskFunc is a unit of deferred work. Returning an error retries the task
// unless the error is wrapped with Permanent.
type TaskFunc func(ctx context.Context) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type task struct {
	client *Client
	name   string
	fn     TaskFunc
}

// Queue is a fixed-size worker pool with a bounded backlog.
type Queue struct {
	workers    int
	capacity   int
	maxRetries uint64
	baseDelay  time.Duration
	logger     *slog.Logger

	tasks   chan task
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.RWMutex
	started bool
	closed  bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithCapacity sets the backlog size.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithRetry sets the retry budget and base backoff delay.
func WithRetry(maxRetries uint64, baseDelay time.Duration) Option {
	return func(q *Queue) {
		q.maxRetries = maxRetries
		if baseDelay > 0 {
			q.baseDelay = baseDelay
		}
	}
}

// WithLogger sets the logger for queue and task events.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a queue. Call Start before submitting work.
func New(opts ...Option) *Queue {
	q := &Queue{
		workers:    DefaultWorkers,
		capacity:   DefaultCapacity,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan task, q.capacity)
	return q
}

// Start launches the workers. Tasks run with contexts derived from ctx.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return oops.Code("QUEUE_CLOSED").In("taskqueue").Errorf("queue is stopped")
	}
	if q.started {
		return oops.Code("QUEUE_ALREADY_STARTED").In("taskqueue").Errorf("queue already started")
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for range q.workers {
		q.wg.Add(1)
		go q.work(runCtx)
	}
	q.logger.Debug("task queue started", "workers", q.workers, "capacity", q.capacity)
	return nil
}

// Stop stops accepting tasks, lets workers drain the backlog and waits for
// them. If ctx expires first, running tasks are cancelled and Stop returns
// the context error.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	cancel := q.cancel
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return oops.Code("QUEUE_STOP_TIMEOUT").In("taskqueue").Wrap(ctx.Err())
	}
}

// Client returns a client that submits tasks on behalf of papp.
func (q *Queue) Client(papp string) *Client {
	return &Client{queue: q, papp: papp}
}

func (q *Queue) submit(ctx context.Context, t task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return oops.Code("QUEUE_CLOSED").In("taskqueue").With("papp", t.client.papp).With("task", t.name).
			Errorf("queue is stopped")
	}

	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return oops.Code("QUEUE_SUBMIT_CANCELLED").In("taskqueue").With("papp", t.client.papp).With("task", t.name).
			Wrap(ctx.Err())
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(ctx, t)
	}
}

func (q *Queue) run(ctx context.Context, t task) {
	logger := q.logger.With("papp", t.client.papp, "task", t.name)
	if t.client.closed.Load() {
		logger.Debug("dropping task for closed client")
		return
	}

	backoff := retry.WithMaxRetries(q.maxRetries, retry.NewExponential(q.baseDelay))
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := t.fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || t.client.closed.Load() {
			return err
		}
		return retry.RetryableError(err)
	})

	t.client.done.Add(1)
	if err != nil {
		t.client.failed.Add(1)
		logger.Warn("task failed", "attempts", attempts, "error", err)
		return
	}
	logger.Debug("task completed", "attempts", attempts)
}

// Client submits tasks for one papp. A closed client rejects new tasks and
// queued tasks that have not started yet are dropped.
type Client struct {
	queue  *Queue
	papp   string
	closed atomic.Bool
	done   atomic.Int64
	failed atomic.Int64
}

// Papp returns the name of the papp the client is bound to.
func (c *Client) Papp() string {
	return c.papp
}

// Submit enqueues fn. It blocks while the backlog is full, until ctx is done.
func (c *Client) Submit(ctx context.Context, name string, fn TaskFunc) error {
	if fn == nil {
		return oops.Code("QUEUE_INVALID_TASK").In("taskqueue").With("papp", c.papp).With("task", name).
			Errorf("task function cannot be nil")
	}
	if c.closed.Load() {
		return oops.Code("QUEUE_CLIENT_CLOSED").In("taskqueue").With("papp", c.papp).With("task", name).
			Errorf("task client for %s is closed", c.papp)
	}
	return c.queue.submit(ctx, task{client: c, name: name, fn: fn})
}

// Close stops the client from accepting tasks.
func (c *Client) Close() {
	c.closed.Store(true)
}

// Stats returns how many tasks finished and how many of those failed.
func (c *Client) Stats() (done, failed int64) {
	return c.done.Load(), c.failed.Load()
}
