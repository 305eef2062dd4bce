package flags

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_RaiseAndConsume(t *testing.T) {
	t.Parallel()

	s := NewSet()

	s.Raise("fetch")
	s.Raise("fetch")

	require.True(t, s.Has("fetch"))
	require.Equal(t, 1, s.Len())

	assert.True(t, s.Consume("fetch"))
	assert.False(t, s.Consume("fetch"))
	assert.False(t, s.Has("fetch"))
}

func TestSet_ConsumeAny(t *testing.T) {
	t.Parallel()

	s := NewSet("b", "c")

	got, ok := s.ConsumeAny("a", "c", "b")
	require.True(t, ok)
	assert.Equal(t, Flag("c"), got)
	assert.Equal(t, []Flag{"b"}, s.Flags())

	_, ok = s.ConsumeAny("a")
	assert.False(t, ok)
}

func TestSet_FlagsNaturalOrder(t *testing.T) {
	t.Parallel()

	s := NewSet("retry10", "retry2", "alpha")

	assert.Equal(t, []Flag{"alpha", "retry2", "retry10"}, s.Flags())

	s.Remove("alpha")
	assert.Equal(t, []Flag{"retry2", "retry10"}, s.Flags())

	s.Clear()
	assert.Empty(t, s.Flags())
}

func TestSet_ConcurrentConsumeIsExclusive(t *testing.T) {
	t.Parallel()

	s := NewSet("once")

	const workers = 16

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if s.Consume("once") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
}
