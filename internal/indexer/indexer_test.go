package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexerMergesInTimestampOrder(t *testing.T) {
	idx := New(3)
	idx.Start()

	idx.GetInput(0).Push(&Item{TimestampSec: 2, Payload: "a0"})
	idx.GetInput(0).Push(&Item{TimestampSec: 5, Payload: "a1"})
	idx.GetInput(1).Push(&Item{TimestampSec: 1, Payload: "b0"})
	idx.GetInput(2).Push(&Item{TimestampSec: 3, Payload: "c0"})

	idx.GetInput(0).Stop()
	idx.GetInput(1).Stop()
	idx.GetInput(2).Stop()

	var got []string
	for {
		item, _, ok := idx.Next()
		if !ok {
			break
		}
		got = append(got, item.Payload.(string))
	}
	idx.Join()

	assert.Equal(t, []string{"b0", "a0", "c0", "a1"}, got)
}

func TestIndexerAssignsDenseMonotonicOrdinals(t *testing.T) {
	idx := New(2)
	idx.Start()

	for i := 0; i < 10; i++ {
		idx.GetInput(i%2).Push(&Item{TimestampSec: int64(i)})
	}
	idx.GetInput(0).Stop()
	idx.GetInput(1).Stop()

	var ordinals []uint64
	for {
		_, ord, ok := idx.Next()
		if !ok {
			break
		}
		ordinals = append(ordinals, ord)
	}
	idx.Join()

	require.Len(t, ordinals, 10)
	for i, o := range ordinals {
		assert.Equal(t, uint64(i), o)
	}
}

func TestIndexerTieBreaksOnLowestInputIndex(t *testing.T) {
	idx := New(2)
	idx.Start()

	idx.GetInput(0).Push(&Item{TimestampSec: 1, Payload: "from-0"})
	idx.GetInput(1).Push(&Item{TimestampSec: 1, Payload: "from-1"})
	idx.GetInput(0).Stop()
	idx.GetInput(1).Stop()

	item, _, ok := idx.Next()
	require.True(t, ok)
	assert.Equal(t, "from-0", item.Payload)

	idx.Join()
}

func TestIndexerSingleInputPassesThrough(t *testing.T) {
	idx := New(1)
	idx.Start()

	idx.GetInput(0).Push(&Item{TimestampSec: 42, Payload: "only"})
	idx.GetInput(0).Stop()

	item, ord, ok := idx.Next()
	require.True(t, ok)
	assert.Equal(t, "only", item.Payload)
	assert.Equal(t, uint64(0), ord)

	idx.Join()
}
