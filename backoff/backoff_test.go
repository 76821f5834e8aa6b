package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayGrowth(t *testing.T) {
	p := Policy{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 10}

	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 16*time.Second, p.Delay(5))
}

func TestDelayNonDecreasingAndBounded(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: 3 * time.Second, MaxAttempts: 20}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.Max, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, p.Max, p.Delay(20))
}

func TestDelayClampsAttempt(t *testing.T) {
	p := Default()
	assert.Equal(t, p.Base, p.Delay(0))
	assert.Equal(t, p.Base, p.Delay(-3))
}

func TestExhausted(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Minute, MaxAttempts: 3}

	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestDefaultsApplied(t *testing.T) {
	var p Policy // zero value falls back to defaults

	assert.Equal(t, DefaultBase, p.Delay(1))
	assert.Equal(t, DefaultMax, p.Delay(100))
	assert.False(t, p.Exhausted(DefaultMaxAttempts-1))
	assert.True(t, p.Exhausted(DefaultMaxAttempts))
}
