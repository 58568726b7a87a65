package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned while the collector is considered unavailable
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrProbeInFlight is returned in half-open state when every probe slot is taken
	ErrProbeInFlight = errors.New("circuit breaker probe in flight")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the circuit
	Threshold int
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// Probes is the number of concurrent half-open calls; all must succeed to close
	Probes int
	// IsFailure classifies a call result. Nil counts every error except
	// context cancellation, which says nothing about the collector.
	IsFailure func(err error) bool
	// OnStateChange is called with the lock held; it must not call the breaker
	OnStateChange func(name string, from, to State)
	// Now overrides the clock
	Now func() time.Time
}

func (s *Settings) applyDefaults() {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 15 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
}

// Breaker guards calls to a collector that may be unavailable
type Breaker struct {
	name     string
	settings Settings

	mu        sync.Mutex
	state     State
	epoch     uint64 // bumped on every transition; stale outcomes are ignored
	failures  int    // consecutive, closed state only
	probing   int    // half-open calls in flight
	succeeded int    // half-open successes in this epoch
	openUntil time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	settings.applyDefaults()
	return &Breaker{name: name, settings: settings}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving an expired open circuit to half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(b.settings.Now())
	return b.state
}

// Failures returns the consecutive failure count of the closed state
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.failures
}

// Do runs fn if the breaker admits the call and records its outcome.
// A panic in fn counts as a failure and is re-raised.
func (b *Breaker) Do(fn func() error) error {
	epoch, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(epoch, true)
			panic(r)
		}
	}()

	err = fn()
	b.record(epoch, b.settings.IsFailure(err))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(b.settings.Now())

	switch b.state {
	case StateOpen:
		return b.epoch, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing >= b.settings.Probes {
			return b.epoch, ErrProbeInFlight
		}
		b.probing++
	}
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch {
		return
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.transition(StateOpen)
		}

	case StateHalfOpen:
		b.probing--
		if failed {
			b.transition(StateOpen)
			return
		}
		b.succeeded++
		if b.succeeded >= b.settings.Probes {
			b.transition(StateClosed)
		}
	}
}

// refresh moves an open circuit whose cooldown has passed to half-open
func (b *Breaker) refresh(now time.Time) {
	if b.state == StateOpen && !now.Before(b.openUntil) {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.epoch++
	b.failures = 0
	b.probing = 0
	b.succeeded = 0
	if to == StateOpen {
		b.openUntil = b.settings.Now().Add(b.settings.Cooldown)
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
