package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ledger"
)

func TestGetActive_OrderedByDateDesc(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, createTestTransaction("a", testEpoch.AddDate(0, 0, -2), "1", ledger.Received)))
	require.NoError(t, s.Put(ctx, createTestTransaction("b", testEpoch, "1", ledger.Received)))
	require.NoError(t, s.Put(ctx, createTestTransaction("c", testEpoch.AddDate(0, 0, -1), "1", ledger.Sent)))
	// Same date as "b": tie broken by id.
	require.NoError(t, s.Put(ctx, createTestTransaction("a2", testEpoch, "1", ledger.Sent)))

	active, err := s.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "b", "c", "a"}, ids(active))
}

func TestGetActive_SubSecondOrdering(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	// RFC 3339 with trimmed fractions would sort "…:00Z" after "…:00.5Z".
	require.NoError(t, s.Put(ctx, createTestTransaction("whole", testEpoch, "1", ledger.Received)))
	require.NoError(t, s.Put(ctx, createTestTransaction("half", testEpoch.Add(500*time.Millisecond), "1", ledger.Received)))

	active, err := s.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"half", "whole"}, ids(active))
}

func TestGetTrashed_OrderedByDeletedAtDesc(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, s.Put(ctx, createTestTransaction(id, testEpoch, "1", ledger.Received)))
	}
	for _, id := range []string{"y", "x"} {
		clock.Advance(time.Minute)
		_, err := s.SoftDelete(ctx, id)
		require.NoError(t, err)
	}

	trashed, err := s.GetTrashed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids(trashed))
}

func TestActiveAndTrashedPartitionAll(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("p%02d", i)
		require.NoError(t, s.Put(ctx, createTestTransaction(id, testEpoch.AddDate(0, 0, i), "1", ledger.Received)))
		if i%3 == 0 {
			_, err := s.SoftDelete(ctx, id)
			require.NoError(t, err)
		}
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	active, err := s.GetActive(ctx)
	require.NoError(t, err)
	trashed, err := s.GetTrashed(ctx)
	require.NoError(t, err)

	assert.Len(t, all, len(active)+len(trashed))
	union := append(ids(active), ids(trashed)...)
	assert.ElementsMatch(t, ids(all), union)
	for _, tx := range active {
		assert.False(t, tx.IsDeleted)
	}
	for _, tx := range trashed {
		assert.True(t, tx.IsDeleted)
		assert.True(t, tx.DeletedAt.IsSome())
	}
}

func TestGetUnsynced(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	synced := createTestTransaction("s", testEpoch, "1", ledger.Received)
	synced.Synced = true
	synced.CloudID = ledger.Some("c")
	require.NoError(t, s.Put(ctx, synced))
	require.NoError(t, s.Put(ctx, createTestTransaction("u1", testEpoch, "1", ledger.Received)))
	require.NoError(t, s.Put(ctx, createTestTransaction("u2", testEpoch, "1", ledger.Sent)))

	unsynced, err := s.GetUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(unsynced))

	n, err := s.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListsReturnEmptySlices(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	trashed, err := s.GetTrashed(ctx)
	require.NoError(t, err)
	assert.NotNil(t, trashed)
}
