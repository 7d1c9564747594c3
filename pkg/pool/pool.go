// Package pool wraps ants with task accounting. The service runs every answer
// pipeline on a bounded pool so a traffic burst degrades into queueing instead
// of unbounded goroutine growth.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverload is returned when a nonblocking pool is full.
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

// Config defines the configuration for a worker pool.
type Config struct {
	// Capacity is the maximum number of concurrent workers.
	Capacity int
	// ExpiryDuration is how long an idle worker lives.
	ExpiryDuration time.Duration
	// PreAlloc preallocates worker memory.
	PreAlloc bool
	// Nonblocking makes Submit fail instead of wait when the pool is full.
	Nonblocking bool
	// MaxBlockingTasks bounds waiting submitters when Nonblocking is false
	// (0 means unlimited).
	MaxBlockingTasks int
}

// DefaultConfig returns a blocking pool sized for request pipelines.
func DefaultConfig(capacity int) *Config {
	if capacity <= 0 {
		capacity = 32
	}
	return &Config{
		Capacity:         capacity,
		ExpiryDuration:   10 * time.Second,
		PreAlloc:         false,
		Nonblocking:      false,
		MaxBlockingTasks: 0,
	}
}

// Stats is an atomic snapshot of pool counters.
type Stats struct {
	SubmittedTasks  int64
	CompletedTasks  int64
	FailedTasks     int64
	RejectedTasks   int64
	PanicRecovered  int64
	TotalWaitTimeNs int64
}

type statsCounter struct {
	submitted  atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	rejected   atomic.Int64
	panics     atomic.Int64
	waitTimeNs atomic.Int64
}

// Pool is a named worker pool.
type Pool struct {
	name   string
	pool   *ants.Pool
	config *Config
	stats  statsCounter

	closed   atomic.Bool
	closedMu sync.Mutex
}

// New creates a worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig(0)
	}

	p := &Pool{
		name:   name,
		config: config,
	}

	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r interface{}) {
			logger.Errorw("worker panic recovered",
				"pool", name,
				"panic", r,
			)
		}),
	}

	ap, err := ants.NewPool(config.Capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = ap

	logger.Infow("worker pool created",
		"name", name,
		"capacity", config.Capacity,
	)
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Free returns the number of available workers.
func (p *Pool) Free() int { return p.pool.Free() }

// Submit schedules task on the pool.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	start := time.Now()
	err := p.pool.Submit(func() {
		p.stats.waitTimeNs.Add(int64(time.Since(start)))
		p.stats.submitted.Add(1)

		defer func() {
			if r := recover(); r != nil {
				p.stats.panics.Add(1)
				p.stats.failed.Add(1)
				panic(r) // let the ants panic handler log it
			}
			p.stats.completed.Add(1)
		}()

		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.stats.rejected.Add(1)
			return ErrPoolOverload
		}
		p.stats.failed.Add(1)
		return err
	}
	return nil
}

// Run schedules task on the pool and waits for it to finish or for ctx to be
// done, whichever comes first. When ctx wins, the task keeps running on its
// worker but the caller stops waiting.
func (p *Pool) Run(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	if err := p.Submit(func() {
		defer close(done)
		task()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release closes the pool and releases its workers.
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Load() {
		return
	}
	p.closed.Store(true)
	p.pool.Release()
	logger.Infow("worker pool released", "name", p.name)
}

// ReleaseTimeout closes the pool, waiting up to timeout for running tasks.
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Load() {
		return nil
	}
	p.closed.Store(true)
	return p.pool.ReleaseTimeout(timeout)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks:  p.stats.submitted.Load(),
		CompletedTasks:  p.stats.completed.Load(),
		FailedTasks:     p.stats.failed.Load(),
		RejectedTasks:   p.stats.rejected.Load(),
		PanicRecovered:  p.stats.panics.Load(),
		TotalWaitTimeNs: p.stats.waitTimeNs.Load(),
	}
}
