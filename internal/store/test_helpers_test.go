package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/testutil"
)

var testEpoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new on-disk store in a temp dir with a manual clock.
func createTestStore(t *testing.T) (*Store, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(testEpoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clock))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// createTestTransaction creates an active, unsynced transaction.
func createTestTransaction(id string, date time.Time, amount string, typ ledger.Type) ledger.Transaction {
	return ledger.Transaction{
		ID:         id,
		Date:       date,
		PersonName: "person " + id,
		Amount:     decimal.RequireFromString(amount),
		Type:       typ,
		CreatedAt:  testEpoch,
		UpdatedAt:  testEpoch,
	}
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func ids(ts []ledger.Transaction) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
