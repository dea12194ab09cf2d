package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	b := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 3, CooldownPeriod: time.Minute})

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, Closed, b.State(), "should stay closed below threshold")

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Open, b.State(), "should trip open at threshold")
	assert.False(t, b.Allow(), "open breaker rejects calls during cooldown")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond})

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow(), "cooldown elapsed, probe should be allowed")
	assert.Equal(t, HalfOpen, b.State())

	// A second caller during the same half-open window must not get a slot.
	assert.False(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.State(), "successful probe closes the breaker")
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond})

	require.True(t, b.Allow())
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, Open, b.State(), "failed probe reopens the breaker")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 3, CooldownPeriod: time.Minute})

	b.Allow()
	b.RecordFailure()
	b.Allow()
	b.RecordFailure()
	b.Allow()
	b.RecordSuccess()

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, Closed, b.State(), "reset failure count means threshold is not hit yet")
}

func TestManager_GetOrCreateIsStable(t *testing.T) {
	m := NewManager(BreakerConfig{FailureThreshold: 5, CooldownPeriod: time.Second})

	a := m.GetOrCreate("anthropic")
	b := m.GetOrCreate("anthropic")
	assert.Same(t, a, b, "same name must return the same breaker instance")

	openai := m.GetOrCreate("openai")
	assert.NotSame(t, a, openai)

	snapshots := m.Snapshots()
	assert.Len(t, snapshots, 2)
}

func TestBudgetedTimeout(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, BudgetedTimeout(10*time.Millisecond, 2*time.Second))
	assert.Equal(t, 500*time.Millisecond, BudgetedTimeout(500*time.Millisecond, 2*time.Second))
	assert.Equal(t, 2*time.Second, BudgetedTimeout(5*time.Second, 2*time.Second))
}

func TestShouldAbortAndSuppressRetries(t *testing.T) {
	assert.True(t, ShouldAbort(40*time.Millisecond))
	assert.False(t, ShouldAbort(51*time.Millisecond))

	assert.True(t, SuppressRetries(300*time.Millisecond, 2*time.Second))
	assert.False(t, SuppressRetries(3*time.Second, 2*time.Second))
}
