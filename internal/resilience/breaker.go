// Package resilience guards calls to optional infrastructure so that an
// outage degrades a feature instead of slowing every request.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls
// for cooldown. It then lets a single probe through; the probe's outcome
// closes or reopens the circuit.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	// generation changes on every state transition; results of calls
	// admitted in an earlier generation are ignored.
	generation uint64

	now func() time.Time
}

// NewBreaker creates a breaker. name appears in state-change logs.
func NewBreaker(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Execute runs fn unless the circuit is open. Cancellation of ctx is not
// counted as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	generation, probe, ok := b.acquire()
	if !ok {
		return ErrOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if generation != b.generation {
		return err
	}
	if probe {
		b.probing = false
	}

	switch {
	case err == nil:
		b.failures = 0
		b.transition(Closed)
	case ctx.Err() != nil:
		// The caller gave up; the dependency may be fine.
		if probe {
			b.open()
		}
	default:
		b.failures++
		if probe || b.failures >= b.maxFailures {
			b.open()
		}
	}
	return err
}

// acquire admits a call and reports the generation it was admitted in and
// whether it is the half-open probe.
func (b *Breaker) acquire() (generation uint64, probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return b.generation, false, true
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return 0, false, false
		}
		b.transition(HalfOpen)
	case HalfOpen:
		if b.probing {
			return 0, false, false
		}
	default:
		return 0, false, false
	}
	b.probing = true
	return b.generation, true, true
}

// open must be called with b.mu held.
func (b *Breaker) open() {
	b.transition(Open)
	b.openedAt = b.now()
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	slog.Warn("circuit breaker state change", "breaker", b.name, "from", b.state.String(), "to", to.String())
	b.state = to
	b.generation++
}
