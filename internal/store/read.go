package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/roach88/tally/internal/ledger"
)

// GetAll returns every transaction regardless of state, oldest first.
func (s *Store) GetAll(ctx context.Context) ([]ledger.Transaction, error) {
	return s.list(ctx, "get all", `
		SELECT `+transactionColumns+` FROM transactions
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
}

// GetActive returns non-deleted transactions, newest date first.
func (s *Store) GetActive(ctx context.Context) ([]ledger.Transaction, error) {
	return s.list(ctx, "get active", `
		SELECT `+transactionColumns+` FROM transactions
		WHERE is_deleted = 0
		ORDER BY date DESC, id COLLATE BINARY ASC
	`)
}

// GetTrashed returns soft-deleted transactions, most recently deleted first.
// Rows without deleted_at fall back to their date.
func (s *Store) GetTrashed(ctx context.Context) ([]ledger.Transaction, error) {
	return s.list(ctx, "get trashed", `
		SELECT `+transactionColumns+` FROM transactions
		WHERE is_deleted = 1
		ORDER BY COALESCE(deleted_at, date) DESC, id COLLATE BINARY ASC
	`)
}

// GetUnsynced returns rows whose last mutation has not reached the remote
// store, least recently updated first.
func (s *Store) GetUnsynced(ctx context.Context) ([]ledger.Transaction, error) {
	return s.list(ctx, "get unsynced", `
		SELECT `+transactionColumns+` FROM transactions
		WHERE synced_to_cloud = 0
		ORDER BY updated_at ASC, id COLLATE BINARY ASC
	`)
}

// CountUnsynced returns the number of rows GetUnsynced would return.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE synced_to_cloud = 0`).Scan(&n)
	if err != nil {
		return 0, storageErr("count unsynced", err)
	}
	return n, nil
}

// Get returns the transaction with the given id.
// The bool is false if no such row exists.
func (s *Store) Get(ctx context.Context, id string) (ledger.Transaction, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, storageErr("get", err)
	}
	return t, true, nil
}

// GetSetting decodes the JSON value stored under key into dst.
// Returns false if the key is not set; dst is then left untouched.
func (s *Store) GetSetting(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("get setting", err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, storageErr("get setting", err)
	}
	return true, nil
}

func (s *Store) list(ctx context.Context, op, query string) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(op, err)
	}
	out, err := scanTransactions(rows)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}
