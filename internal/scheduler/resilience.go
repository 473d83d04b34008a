package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RetryConfig configures exponential backoff around the dispatch hand-off.
// The window is deliberately short: a hand-off that keeps getting rejected
// is a failed assignment, not a long-running suspension.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default dispatch retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     50 * time.Millisecond,
		MaxInterval:         500 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages per-agent circuit breakers so one repeatedly
// rejecting agent does not absorb every dispatch attempt.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry(logger *zap.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given agent, creating it on first
// access.
func (r *BreakerRegistry) Get(agentID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentID,
		MaxRequests: 3,                // test requests allowed in half-open state
		Timeout:     30 * time.Second, // stay open before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("agent circuit breaker state change",
				zap.String("agent", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// User cancellation is not an agent failure.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[agentID] = cb
	return cb
}

// dispatchWithResilience hands the task to the agent pool under the agent's
// circuit breaker, retrying rejected hand-offs with exponential backoff.
func dispatchWithResilience(ctx context.Context, pool AgentPool, agentID string, task *Task, cfg RetryConfig, breakers *BreakerRegistry) error {
	cb := breakers.Get(agentID)

	_, err := cb.Execute(func() (interface{}, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.InitialInterval
		b.MaxInterval = cfg.MaxInterval
		b.MaxElapsedTime = cfg.MaxElapsedTime
		b.Multiplier = cfg.Multiplier
		b.RandomizationFactor = cfg.RandomizationFactor

		op := func() error {
			return pool.ExecuteTask(ctx, agentID, task)
		}
		return nil, backoff.Retry(op, backoff.WithContext(b, ctx))
	})
	return err
}
