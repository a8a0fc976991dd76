// Package breaker implements a three-state (Closed/Open/HalfOpen)
// circuit breaker guarding the Aleo API. No circuit-breaker library
// appears in any go.mod in this module, so this state machine is
// hand-rolled (see DESIGN.md's standard-library justifications).
package breaker

import (
	"sync"
	"time"

	"github.com/luxfi/privacy-relayer/internal/clockutil"
	"github.com/luxfi/privacy-relayer/internal/model"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config holds the breaker's tunables.
type Config struct {
	FailureThreshold int           // default 5
	MonitoringWindow time.Duration // default 60s
	ResetTimeout     time.Duration // default 60s
	HalfOpenSuccess  int           // default 2
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		MonitoringWindow: 60 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenSuccess:  2,
	}
}

// Breaker is a single sliding-window circuit breaker instance.
type Breaker struct {
	cfg   Config
	clock clockutil.Clock

	mu               sync.Mutex
	state            State
	failureTimestamps []time.Time
	halfOpenSuccesses int
	reopenNotBefore  time.Time
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, clock: clockutil.RealClock{}, state: Closed}
}

// NewWithClock is used by tests to control window expiry deterministically.
func NewWithClock(cfg Config, clock clockutil.Clock) *Breaker {
	return &Breaker{cfg: cfg, clock: clock, state: Closed}
}

// State returns the breaker's current state, performing the Open->HalfOpen
// transition check (reopenNotBefore elapsed) as a side effect: once now
// reaches reopenNotBefore, the next call observes HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && !b.reopenNotBefore.After(b.clock.Now()) {
		b.state = HalfOpen
		b.halfOpenSuccesses = 0
	}
}

// Execute wraps fn with the breaker: fails fast with CircuitOpen while
// Open, otherwise runs fn and records the outcome. The breaker does not
// inspect fn's error kind; transient and fatal failures count identically.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		b.mu.Unlock()
		return model.CircuitOpenError("circuit breaker is open")
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailureLocked()
	} else {
		b.recordSuccessLocked()
	}
	return err
}

func (b *Breaker) recordFailureLocked() {
	now := b.clock.Now()
	switch b.state {
	case HalfOpen:
		b.openLocked(now)
	case Closed:
		b.failureTimestamps = append(b.failureTimestamps, now)
		b.failureTimestamps = pruneWindow(b.failureTimestamps, now, b.cfg.MonitoringWindow)
		if len(b.failureTimestamps) >= b.cfg.FailureThreshold {
			b.openLocked(now)
		}
	case Open:
	}
}

func (b *Breaker) recordSuccessLocked() {
	switch b.state {
	case HalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccess {
			b.state = Closed
			b.failureTimestamps = nil
			b.halfOpenSuccesses = 0
		}
	case Closed:
		// Sliding window decays failures implicitly; nothing to record on success.
	}
}

func (b *Breaker) openLocked(now time.Time) {
	b.state = Open
	b.reopenNotBefore = now.Add(b.cfg.ResetTimeout)
	b.halfOpenSuccesses = 0
}

func pruneWindow(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
