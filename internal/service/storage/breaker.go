package storage

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"streamchat-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerHalfOpen
	CircuitBreakerOpen
)

// ErrCircuitOpen is returned without calling storage while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures  int
	Timeout      time.Duration // per-operation timeout
	ResetTimeout time.Duration // how long the breaker stays open before a trial call
}

// DefaultCircuitBreakerConfig returns default circuit breaker settings
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		Timeout:      10 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

type circuitBreaker struct {
	mu          sync.Mutex
	config      *CircuitBreakerConfig
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

func newCircuitBreaker(config *CircuitBreakerConfig) *circuitBreaker {
	return &circuitBreaker{
		config: config,
		state:  CircuitBreakerClosed,
		now:    time.Now,
	}
}

// allow reports whether a call may proceed. An open breaker lets one trial call
// through once ResetTimeout has passed.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitBreakerOpen {
		return true
	}
	if b.now().Sub(b.lastFailure) >= b.config.ResetTimeout {
		b.state = CircuitBreakerHalfOpen
		return true
	}
	return false
}

// record updates the breaker with the outcome of a call. Caller errors that do not
// indicate an unhealthy backend should be passed as nil.
func (b *circuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.state = CircuitBreakerClosed
		b.lastFailure = time.Time{}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == CircuitBreakerHalfOpen || b.failures >= b.config.MaxFailures {
		if b.state != CircuitBreakerOpen {
			logger.Warn("Storage circuit breaker opened",
				zap.Int("failures", b.failures),
				zap.Error(err))
		}
		b.state = CircuitBreakerOpen
	}
}

// State returns the current circuit breaker state
func (b *circuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
