// Package breaker implements the circuit breaker protecting the embedding
// provider. One Breaker instance is shared process-wide per protected
// dependency; state is not persisted across restarts.
package breaker

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrOpen is returned by Execute when the circuit is open and the call
// was not attempted.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int32

const (
	// StateClosed is the normal state where calls pass through.
	StateClosed State = iota
	// StateOpen is when the circuit is tripped and calls fail fast.
	StateOpen
	// StateHalfOpen is when a single trial call is probing recovery.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
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

// Breaker is a lock-free circuit breaker. State transitions use
// compare-and-swap so concurrent requests never serialize on it.
type Breaker struct {
	name        string
	maxFailures int32
	cooldown    time.Duration

	state    atomic.Int32
	failures atomic.Int32
	openedAt atomic.Int64 // unix nanos of the transition to open

	clock func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithMaxFailures sets the number of consecutive failures before opening.
func WithMaxFailures(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = int32(n)
		}
	}
}

// WithCooldown sets how long the circuit stays open before allowing a
// trial call.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides the breaker clock. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) {
		b.clock = clock
	}
}

// New creates a circuit breaker with the given name.
// Default: 5 consecutive failures, 30 second cooldown.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: 5,
		cooldown:    30 * time.Second,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	return int(b.failures.Load())
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the cooldown elapses, at which point exactly one caller wins
// the half-open trial slot; everyone else keeps failing fast until the
// trial resolves.
func (b *Breaker) Allow() bool {
	switch State(b.state.Load()) {
	case StateClosed:
		return true
	case StateOpen:
		opened := time.Unix(0, b.openedAt.Load())
		if b.clock().Sub(opened) < b.cooldown {
			return false
		}
		// CAS guarantees a single winner for the trial call.
		return b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen))
	default: // StateHalfOpen: trial in flight
		return false
	}
}

// RecordSuccess resets the breaker after a successful call.
func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
	b.state.Store(int32(StateClosed))
}

// RecordFailure counts a failed call. A failed half-open trial reopens
// immediately; in the closed state the circuit opens after maxFailures
// consecutive failures.
func (b *Breaker) RecordFailure() {
	now := b.clock().UnixNano()

	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
		b.openedAt.Store(now)
		return
	}

	if b.failures.Add(1) >= b.maxFailures {
		if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
			b.openedAt.Store(now)
		}
	}
}

// Execute runs fn through the breaker. Returns ErrOpen without invoking
// fn when the call is not allowed.
func (b *Breaker) Execute(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
