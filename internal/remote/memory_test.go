package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/testutil"
)

func newTestMemory() *Memory {
	return NewMemory(
		WithIDs(testutil.NewSeqIDs("r")),
		WithMemoryClock(testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
	)
}

func testRecord(name string, day int) Record {
	return Record{
		Date:       time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		PersonName: name,
		Amount:     decimal.NewFromInt(10),
		Type:       "received",
	}
}

func TestMemory_InsertAssignsNewIDs(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	rec := testRecord("a", 1)
	rec.ID = "ignored"
	id1, err := m.Insert(ctx, "u1", rec)
	require.NoError(t, err)
	id2, err := m.Insert(ctx, "u1", rec)
	require.NoError(t, err)

	assert.Equal(t, "r-1", id1)
	assert.Equal(t, "r-2", id2)
	assert.Equal(t, 2, m.Len("u1"))

	row, ok := m.Row(id1)
	require.True(t, ok)
	assert.Equal(t, "u1", row.OwnerID)
	assert.False(t, row.CreatedAt.IsZero())
}

func TestMemory_RejectsUnauthenticated(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	_, err := m.Insert(ctx, "", testRecord("a", 1))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, IsRemoteError(err))

	_, err = m.Select(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMemory_SelectIsOwnerScopedAndSorted(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	_, err := m.Insert(ctx, "u1", testRecord("old", 1))
	require.NoError(t, err)
	_, err = m.Insert(ctx, "u1", testRecord("new", 5))
	require.NoError(t, err)
	_, err = m.Insert(ctx, "u2", testRecord("other", 3))
	require.NoError(t, err)

	rows, err := m.Select(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new", rows[0].PersonName)
	assert.Equal(t, "old", rows[1].PersonName)

	rows, err = m.Select(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestMemory_Upsert(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	id, err := m.Upsert(ctx, "u1", testRecord("a", 1))
	require.NoError(t, err)

	rec := testRecord("renamed", 1)
	rec.ID = id
	got, err := m.Upsert(ctx, "u1", rec)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, 1, m.Len("u1"))

	row, _ := m.Row(id)
	assert.Equal(t, "renamed", row.PersonName)

	// Another owner cannot take over the row.
	_, err = m.Upsert(ctx, "u2", rec)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	row, _ = m.Row(id)
	assert.Equal(t, "u1", row.OwnerID)
}

func TestMemory_UpdateByRemoteID(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	id, err := m.Insert(ctx, "u1", testRecord("a", 1))
	require.NoError(t, err)

	deleted := true
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.UpdateByRemoteID(ctx, "u1", id, Patch{IsDeleted: &deleted, DeletedAt: &at}))

	row, _ := m.Row(id)
	assert.True(t, row.IsDeleted)
	require.NotNil(t, row.DeletedAt)
	assert.Equal(t, at, *row.DeletedAt)
	assert.Equal(t, "a", row.PersonName)

	err = m.UpdateByRemoteID(ctx, "u2", id, Patch{})
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.UpdateByRemoteID(ctx, "u1", "missing", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_FaultHook(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	boom := errors.New("network down")

	m.SetFault(func(op, ownerID string, rec Record) error {
		if rec.PersonName == "bad" {
			return boom
		}
		return nil
	})

	_, err := m.Insert(ctx, "u1", testRecord("bad", 1))
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsRemoteError(err))

	_, err = m.Insert(ctx, "u1", testRecord("good", 1))
	assert.NoError(t, err)

	assert.Equal(t, 2, m.Calls("insert"))
	assert.Equal(t, 1, m.Len("u1"))

	m.SetFault(nil)
	_, err = m.Insert(ctx, "u1", testRecord("bad", 1))
	assert.NoError(t, err)
}

func TestMemory_CancelledContext(t *testing.T) {
	m := newTestMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Insert(ctx, "u1", testRecord("a", 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Len("u1"))
}
