package nav

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeQueueFIFO(t *testing.T) {
	q := NewChangeQueue(5)
	assert.Equal(t, 8, q.Cap(), "capacity rounds up to a power of 2")

	for i := 1; i <= 3; i++ {
		require.True(t, q.TryPush(CostChange{Revision: uint64(i)}))
	}
	assert.Equal(t, 3, q.Len())

	got := q.Drain(10)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, uint64(i+1), c.Revision)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.Nil(t, q.Drain(0))
}

func TestChangeQueueOverflow(t *testing.T) {
	q := NewChangeQueue(4)
	for i := 0; i < 6; i++ {
		q.Publish(CostChange{Revision: uint64(i)})
	}

	assert.Equal(t, uint64(2), q.Dropped())
	assert.True(t, q.TakeOverflow())
	assert.False(t, q.TakeOverflow(), "latch clears on read")

	got := q.Drain(2)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].Revision)

	// Space freed by the consumer is reusable
	assert.True(t, q.TryPush(CostChange{Revision: 99}))
	assert.Len(t, q.Drain(10), 3)
}

func TestChangeQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 500
	q := NewChangeQueue(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Publish(CostChange{Obstacle: ObstacleID(rune('a' + p)), Revision: uint64(i)})
			}
		}(p)
	}

	seen := 0
	lastRev := make(map[ObstacleID]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	consume := func() int {
		batch := q.Drain(64)
		for _, c := range batch {
			prev, ok := lastRev[c.Obstacle]
			if ok {
				assert.Equal(t, prev+1, int(c.Revision), "per-producer order preserved")
			}
			lastRev[c.Obstacle] = int(c.Revision)
			seen++
		}
		return len(batch)
	}

	for {
		select {
		case <-done:
			for consume() > 0 {
			}
			assert.Equal(t, producers*perProducer, seen)
			assert.Zero(t, q.Dropped())
			return
		default:
			consume()
		}
	}
}
