package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeClock(l *Limiter) *time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return &now
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l := New(2, 3)
	now := fakeClock(l)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
	assert.False(t, l.Allow("10.0.0.1"))

	*now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, 1)
	fakeClock(l)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestLimiter_RefillCapsAtBurst(t *testing.T) {
	l := New(10, 2)
	now := fakeClock(l)

	assert.True(t, l.Allow("a"))
	*now = now.Add(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_SweepsFullBuckets(t *testing.T) {
	l := New(1, 1)
	now := fakeClock(l)
	l.sweepAt = 2

	l.Allow("a")
	l.Allow("b")
	*now = now.Add(10 * time.Second)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}
