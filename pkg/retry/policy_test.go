package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// midpointRand makes jitter deterministic: rand()*2-1 == 0, so Delay returns
// the exact exponential value.
func midpointRand() float64 { return 0.5 }

func TestPolicyExponentialSequence(t *testing.T) {
	p := NewPolicy(
		WithBaseDelay(100*time.Millisecond),
		WithMaxDelay(30*time.Second),
		WithRandSource(midpointRand),
	)

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
}

func TestPolicyCappedByMaxDelay(t *testing.T) {
	p := NewPolicy(
		WithBaseDelay(1*time.Second),
		WithMaxDelay(5*time.Second),
		WithRandSource(midpointRand),
	)

	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(10))
	assert.Equal(t, 5*time.Second, p.Delay(60))
}

func TestPolicyNonDecreasing(t *testing.T) {
	p := NewPolicy(WithRandSource(midpointRand))

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, DefaultMaxDelay)
		prev = d
	}
}

func TestPolicyJitterBounds(t *testing.T) {
	base := 1 * time.Second

	for name, rand := range map[string]func() float64{
		"low":  func() float64 { return 0.0 },
		"high": func() float64 { return 0.999999 },
	} {
		p := NewPolicy(
			WithBaseDelay(base),
			WithJitterFactor(0.1),
			WithRandSource(rand),
		)
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond, name)
		assert.LessOrEqual(t, d, 1100*time.Millisecond, name)
	}
}

func TestPolicyAttemptFloor(t *testing.T) {
	p := NewPolicy(WithBaseDelay(time.Second), WithRandSource(midpointRand))

	// Attempts below one are treated as the first attempt.
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(-3))
}

func TestPolicySecureRandSource(t *testing.T) {
	// The default source must produce values in [0, 1).
	for i := 0; i < 100; i++ {
		v := secureRandFloat64()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestStateExhaustion(t *testing.T) {
	s := NewState(2)

	attempt, exhausted := s.RecordFailure()
	assert.Equal(t, 1, attempt)
	assert.False(t, exhausted)

	attempt, exhausted = s.RecordFailure()
	assert.Equal(t, 2, attempt)
	assert.False(t, exhausted)

	// The third consecutive failure blows the budget of two retries.
	attempt, exhausted = s.RecordFailure()
	assert.Equal(t, 3, attempt)
	assert.True(t, exhausted)
}

func TestStateResetOnDelivery(t *testing.T) {
	s := NewState(2)

	s.RecordFailure()
	s.RecordFailure()
	require.Equal(t, 2, s.Attempt())

	s.Reset()
	assert.Equal(t, 0, s.Attempt())

	// The schedule starts over after a reset.
	attempt, exhausted := s.RecordFailure()
	assert.Equal(t, 1, attempt)
	assert.False(t, exhausted)
}

func TestStateZeroBudget(t *testing.T) {
	s := NewState(0)

	attempt, exhausted := s.RecordFailure()
	assert.Equal(t, 1, attempt)
	assert.True(t, exhausted)
}

func TestStateRetryHint(t *testing.T) {
	s := NewState(5)

	_, ok := s.TakeHint()
	assert.False(t, ok)

	s.SetHint(2 * time.Second)
	hint, ok := s.TakeHint()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, hint)

	// The hint applies to one backoff only.
	_, ok = s.TakeHint()
	assert.False(t, ok)
}
