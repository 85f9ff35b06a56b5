package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLGetPut(t *testing.T) {
	c := NewTTL[int](time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", 42)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTTLExpiry(t *testing.T) {
	c := NewTTL[string](time.Minute)

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Put("k", "v")

	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestTTLInvalidate(t *testing.T) {
	c := NewTTL[string](time.Minute)
	c.Put("k", "v")
	c.Invalidate("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestGetOrLoad(t *testing.T) {
	c := NewTTL[string](time.Minute)

	calls := 0
	load := func() (string, error) {
		calls++
		return "loaded", nil
	}

	v, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, calls)

	// Second call is served from cache
	v, err = c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, calls)
}

func TestGetOrLoadErrorNotCached(t *testing.T) {
	c := NewTTL[string](time.Minute)

	boom := errors.New("boom")
	_, err := c.GetOrLoad("k", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	// A later successful load must still run
	v, err := c.GetOrLoad("k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
