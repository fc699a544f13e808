package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToLimit(t *testing.T) {
	l := NewLimiter(3, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		ok, retry := l.Allow("k")
		assert.True(t, ok, "request %d", i+1)
		assert.Zero(t, retry)
	}

	ok, retry := l.Allow("k")
	assert.False(t, ok)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 60)
}

func TestLimiterWindowResets(t *testing.T) {
	l := NewLimiter(1, time.Minute, zerolog.Nop())
	base := time.Now()
	l.now = func() time.Time { return base }

	ok, _ := l.Allow("k")
	require.True(t, ok)
	ok, retry := l.Allow("k")
	require.False(t, ok)
	assert.Equal(t, 60, retry)

	// 30s in, half the window remains
	l.now = func() time.Time { return base.Add(30 * time.Second) }
	ok, retry = l.Allow("k")
	require.False(t, ok)
	assert.Equal(t, 30, retry)

	// new window
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	ok, _ = l.Allow("k")
	assert.True(t, ok)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute, zerolog.Nop())

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok, "another key has its own window")
	ok, _ = l.Allow("a")
	assert.False(t, ok)
}

func TestLimiterSweep(t *testing.T) {
	l := NewLimiter(5, time.Minute, zerolog.Nop())
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	removed := l.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, l.Len())
}

func TestServiceSeparatesUserAndIP(t *testing.T) {
	s := NewService(zerolog.Nop())

	// the ip budget (10/min) runs out before the user budget (30/min)
	for i := 0; i < IPLimit; i++ {
		ok, _ := s.AllowIP("203.0.113.7")
		require.True(t, ok, "ip request %d", i+1)
	}
	ok, retry := s.AllowIP("203.0.113.7")
	assert.False(t, ok)
	assert.Greater(t, retry, 0)

	for i := 0; i < UserLimit; i++ {
		ok, _ := s.AllowUser("user-1")
		require.True(t, ok, "user request %d", i+1)
	}
	ok, _ = s.AllowUser("user-1")
	assert.False(t, ok)

	ok, _ = s.AllowUser("user-2")
	assert.True(t, ok)
}
