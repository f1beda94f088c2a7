// Package resilience provides a circuit breaker guarding calls to the remote
// store. Repeated failures open the circuit so an unreachable provider is not
// hammered; after a cooldown a single probe decides whether to close it.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the circuit is open. Callers should treat it as
// a transient failure.
var ErrOpen = errors.New("resilience: circuit open")

// State is the circuit state.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tunes the breaker.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Zero means 5.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before probing. Zero
	// means 30s.
	Cooldown time.Duration
	// OnStateChange, if set, observes transitions.
	OnStateChange func(from, to State)
}

// Breaker is a minimal consecutive-failure circuit breaker.
type Breaker struct {
	settings Settings

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a breaker with the given settings.
func New(settings Settings) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &Breaker{settings: settings}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Do runs fn if the circuit admits it, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState(time.Now()) {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState(time.Now())
	b.probing = false

	if success {
		b.failures = 0
		if state != Closed {
			b.transition(state, Closed)
		}
		return
	}

	b.failures++
	if state == HalfOpen || b.failures >= b.settings.FailureThreshold {
		b.openedAt = time.Now()
		if state != Open {
			b.transition(state, Open)
		}
	}
}

// currentState accounts for cooldown expiry; callers hold the lock.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == Open && now.Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(Open, HalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(from, to State) {
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if b.settings.OnStateChange != nil && from != to {
		b.settings.OnStateChange(from, to)
	}
}
