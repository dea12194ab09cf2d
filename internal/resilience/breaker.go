// Package resilience holds the process-local failure-handling primitives
// used by the LLM rerank clients: a hand-rolled circuit breaker and an
// exponential-backoff retry policy.
//
// spec §9 Design Notes calls out the teacher's "async + circuit breaker +
// external package ecosystem" pattern as needing re-architecture into
// "explicit state variables (failureCount, openedAt) guarded by a mutex or
// atomic pair" — this file is that redesign, grounded on the teacher's own
// pkg/embedding/circuit_breaker.go and pkg/resilience/circuit_breaker.go,
// both of which already hand-roll the same shape internally.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states from spec §4.4.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	CooldownPeriod   time.Duration
}

// CircuitBreaker implements the three-state breaker from spec §4.4: CLOSED
// counts consecutive failures and trips to OPEN at the threshold; OPEN
// rejects every call until the cooldown elapses, then allows exactly one
// HALF_OPEN probe; that probe's outcome decides CLOSED (success) or OPEN
// (failure), refreshing openedAt in the latter case.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	openedAt        time.Time
	halfOpenInFlight bool
}

// NewCircuitBreaker constructs a breaker in the CLOSED state.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.CooldownPeriod <= 0 {
		config.CooldownPeriod = 30 * time.Second
	}
	return &CircuitBreaker{name: name, config: config, state: Closed}
}

// Allow reports whether a call may proceed right now, and transitions OPEN
// to HALF_OPEN when the cooldown has elapsed. It must be called immediately
// before every attempt; a true result reserves the single HALF_OPEN slot
// when the breaker is in that state.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) > b.config.CooldownPeriod {
			b.state = HalfOpen
			b.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call outcome.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failureCount = 0
		b.halfOpenInFlight = false
	case Closed:
		b.failureCount = 0
	}
}

// RecordFailure reports a failed call outcome.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.halfOpenInFlight = false
	case Closed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
			b.openedAt = time.Now()
		}
	}
}

// State returns the current breaker state. Reads are allowed to be stale
// per spec §5 (Circuit state: "Reads are allowed to be stale; writes
// serialize").
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot describes a breaker's state for health/metrics reporting.
type Snapshot struct {
	Name         string
	State        string
	FailureCount int
	OpenedAt     time.Time
}

// Snapshot returns a copy of the breaker's current state.
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		OpenedAt:     b.openedAt,
	}
}

// Manager is a named registry of circuit breakers, grounded on the
// teacher's CircuitBreakerManager (pkg/resilience/circuit_breaker.go),
// simplified to match the breaker shape above.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults BreakerConfig
}

// NewManager creates a breaker registry using defaults for any breaker
// created on first access via GetOrCreate.
func NewManager(defaults BreakerConfig) *Manager {
	return &Manager{breakers: make(map[string]*CircuitBreaker), defaults: defaults}
}

// GetOrCreate returns the named breaker, creating it with the manager's
// default config if it does not exist yet.
func (m *Manager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b = NewCircuitBreaker(name, m.defaults)
	m.breakers[name] = b
	return b
}

// Snapshots returns the current state of every registered breaker.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
