package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_Frozen(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	got := clock.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), got)
	assert.Equal(t, got, clock.Now())
}

func TestManualClock_SetConvertsToUTC(t *testing.T) {
	clock := NewManualClock(time.Time{})
	loc := time.FixedZone("X", 3600)
	clock.Set(time.Date(2024, 2, 1, 10, 0, 0, 0, loc))

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 9, clock.Now().Hour())
}

func TestSeqIDs(t *testing.T) {
	ids := NewSeqIDs("")
	assert.Equal(t, "tx-1", ids.NewID())
	assert.Equal(t, "tx-2", ids.NewID())

	ids.Reset()
	assert.Equal(t, "tx-1", ids.NewID())
}

func TestSeqIDs_ConcurrentUnique(t *testing.T) {
	ids := NewSeqIDs("c")
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := ids.NewID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
