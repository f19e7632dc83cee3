package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheEvictsByEntriesAndBytes(t *testing.T) {
	c := New[string](2, 0, time.Minute)
	c.Set("a", "A", 1)
	c.Set("b", "B", 1)
	c.Set("c", "C", 1)
	_, ok := c.Get("a")
	require.False(t, ok)

	sized := New[[]byte](8, 10, time.Minute)
	sized.Set("x", make([]byte, 6), 6)
	sized.Set("y", make([]byte, 6), 6)
	_, ok = sized.Get("x")
	require.False(t, ok)
	require.Equal(t, 6, sized.Stats().Bytes)

	sized.Set("huge", make([]byte, 20), 20)
	_, ok = sized.Get("huge")
	require.False(t, ok)
	require.Equal(t, 6, sized.Stats().Bytes)
}

func TestCacheReplaceKeepsByteAccounting(t *testing.T) {
	c := New[string](4, 100, time.Minute)
	c.Set("k", "one", 10)
	c.Set("k", "two", 4)
	require.Equal(t, 4, c.Stats().Bytes)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "two", v)
	c.Delete("k")
	require.Equal(t, 0, c.Stats().Bytes)
}

func TestCacheExpires(t *testing.T) {
	c := New[int](4, 0, 10*time.Millisecond)
	c.Set("k", 1, 0)
	require.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestGetOrLoadSharesConcurrentLoads(t *testing.T) {
	c := New[string](4, 0, time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad("payload", func() (string, int, error) {
				calls.Add(1)
				<-release
				return "loaded", 6, nil
			})
			if err == nil {
				results[i] = v
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, calls.Load(), int32(8))
	for _, v := range results {
		require.Equal(t, "loaded", v)
	}
	v, err := c.GetOrLoad("payload", func() (string, int, error) {
		t.Fatal("cached value must not reload")
		return "", 0, nil
	})
	require.NoError(t, err)
	require.Equal(t, "loaded", v)
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New[string](4, 0, time.Minute)
	boom := errors.New("origin down")
	_, err := c.GetOrLoad("k", func() (string, int, error) { return "", 0, boom })
	require.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad("k", func() (string, int, error) { return "ok", 2, nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, uint64(2), c.Stats().Loads)
}
