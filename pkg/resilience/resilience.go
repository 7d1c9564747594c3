// Package resilience implements the retry and circuit-breaker policy shared
// by every outbound call in the service. A policy is parameterized by attempt
// count, backoff shape, and a transient-vs-fatal classifier, so the document
// store and the completion API use the same machinery with different knobs.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// RetryConfig parameterizes a retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first call.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// Jitter is the fraction of each delay randomized away, in [0, 1).
	// A value of 0.2 turns a 1s delay into a uniform pick from [0.8s, 1s].
	Jitter float64
	// Retryable reports whether an error is worth retrying. Nil means all
	// errors are retryable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the policy used when a caller passes nil:
// 3 attempts, 500ms initial delay doubling up to 10s, 20% jitter.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// ErrCircuitBreakerOpen is returned while the breaker rejects calls.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxCalls limits concurrent probe calls in half-open state.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns the default breaker configuration.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreakerState is the breaker state.
type CircuitBreakerState int

const (
	// StateClosed allows all calls.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects all calls.
	StateOpen
	// StateHalfOpen allows a limited number of probe calls.
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast after repeated failures against a collaborator.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu                sync.Mutex
	state             CircuitBreakerState
	failures          int
	lastFailureTime   time.Time
	halfOpenCalls     int
	halfOpenSuccesses int
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.config.Timeout {
			logger.Infow("circuit breaker transitioning to half-open")
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
			cb.halfOpenSuccesses = 0
			return nil
		}
		return ErrCircuitBreakerOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCalls++
		return nil

	default:
		return ErrCircuitBreakerOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
		return
	}
	cb.onSuccess()
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenCalls {
			logger.Infow("circuit breaker transitioning to closed")
			cb.state = StateClosed
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			logger.Warnw("circuit breaker opening",
				"failures", cb.failures,
				"max_failures", cb.config.MaxFailures,
			)
			cb.state = StateOpen
		}
	case StateHalfOpen:
		logger.Warnw("circuit breaker re-opening after half-open failure")
		cb.state = StateOpen
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker and clears counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
}

// RetryWithBackoff runs fn up to config.MaxAttempts times with exponential
// backoff and jitter. It never sleeps once ctx is done, and never starts an
// attempt on an already-expired context.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			logger.Debugw("error is not retryable", "error", err.Error())
			return err
		}

		if attempt >= config.MaxAttempts {
			logger.Warnw("max retry attempts reached",
				"attempts", attempt,
				"error", err.Error(),
			)
			return fmt.Errorf("max retry attempts (%d) reached: %w", config.MaxAttempts, lastErr)
		}

		logger.Debugw("retrying after delay",
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)

		select {
		case <-time.After(applyJitter(delay, config.Jitter)):
		case <-ctx.Done():
			return lastErr
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return lastErr
}

// RetryWithCircuitBreaker composes the retry policy around a breaker, so an
// open breaker short-circuits each attempt.
func RetryWithCircuitBreaker(
	ctx context.Context,
	retryConfig *RetryConfig,
	cb *CircuitBreaker,
	fn func() error,
) error {
	return RetryWithBackoff(ctx, retryConfig, func() error {
		return cb.Execute(fn)
	})
}

func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || jitter >= 1 {
		return delay
	}
	f := float64(delay) * (1 - jitter*rand.Float64())
	return time.Duration(f)
}
