package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v"))

	val, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.SetTTL(ctx, "k", "v", time.Minute))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "value should be gone after TTL")
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	// Create
	err := s.Update(ctx, "k", func(old string, ok bool) (string, error) {
		assert.False(t, ok)
		return "1", nil
	})
	require.NoError(t, err)

	// Modify
	err = s.Update(ctx, "k", func(old string, ok bool) (string, error) {
		assert.True(t, ok)
		assert.Equal(t, "1", old)
		return "2", nil
	})
	require.NoError(t, err)

	val, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}

func TestMemoryUpdateSkipWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "k", "keep"))

	err := s.Update(ctx, "k", func(old string, ok bool) (string, error) {
		return "", ErrSkipWrite
	})
	require.NoError(t, err)

	val, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

func TestMemoryUpdatePropagatesError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	boom := errors.New("boom")
	err := s.Update(ctx, "k", func(old string, ok bool) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "failed update must not write")
}

func TestMemoryUpdatePreservesTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.SetTTL(ctx, "k", "v1", time.Minute))
	require.NoError(t, s.Update(ctx, "k", func(old string, ok bool) (string, error) {
		return "v2", nil
	}))

	now = now.Add(2 * time.Minute)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "update must keep the original expiry")
}

func TestMemoryUpdateConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "counter", func(old string, ok bool) (string, error) {
				if !ok {
					return "1", nil
				}
				return old + "1", nil
			})
		}()
	}
	wg.Wait()

	val, ok, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, val, workers, "every update must be applied exactly once")
}
