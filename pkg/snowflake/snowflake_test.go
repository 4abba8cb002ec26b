package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewNode_Range(t *testing.T) {
	_, err := NewNode(-1)
	require.Error(t, err)
	_, err = NewNode(1024)
	require.Error(t, err)

	n, err := NewNode(1023)
	require.NoError(t, err)
	require.EqualValues(t, 1023, n.Generate().Node())
}

func TestGenerate_Monotonic(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)

	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerate_ClockBackwards(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	clock := int64(1800000000000)
	n.now = func() int64 { return clock }
	first := n.Generate()

	clock -= 5000
	second := n.Generate()
	require.Greater(t, second, first)
}

func TestGenerate_ConcurrentUnique(t *testing.T) {
	n, err := NewNode(2)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[ID]struct{})
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := n.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 8000)
}

func TestID_TimeAndParse(t *testing.T) {
	n, err := NewNode(0)
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	id := n.Generate()
	require.True(t, id.Time().After(before))

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseID("abc")
	require.Error(t, err)
}
