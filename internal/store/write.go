package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/ledger"
)

const upsertTransactionSQL = `
	INSERT INTO transactions (` + transactionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		cloud_id = excluded.cloud_id,
		date = excluded.date,
		person_name = excluded.person_name,
		amount = excluded.amount,
		type = excluded.type,
		notes = excluded.notes,
		attachment_name = excluded.attachment_name,
		attachment_locator = excluded.attachment_locator,
		attachment_mime = excluded.attachment_mime,
		is_deleted = excluded.is_deleted,
		deleted_at = excluded.deleted_at,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		synced_to_cloud = excluded.synced_to_cloud,
		version = MAX(excluded.version, transactions.version + 1)
`

// Put inserts t, or replaces the row with the same id in place.
// The entity is written exactly as given; no timestamps are stamped.
// Replacing a row always moves its version forward.
func (s *Store) Put(ctx context.Context, t ledger.Transaction) error {
	if t.ID == "" {
		return storageErr("put", errors.New("transaction id is empty"))
	}
	if _, err := s.db.ExecContext(ctx, upsertTransactionSQL, transactionArgs(t)...); err != nil {
		return storageErr("put", err)
	}
	return nil
}

// BulkPut upserts every transaction in a single database transaction.
// Either all rows are written or none are.
func (s *Store) BulkPut(ctx context.Context, ts []ledger.Transaction) error {
	if len(ts) == 0 {
		return nil
	}
	return s.withTx(ctx, "bulk put", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertTransactionSQL)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, t := range ts {
			if t.ID == "" {
				return errors.New("transaction id is empty")
			}
			if _, err := stmt.ExecContext(ctx, transactionArgs(t)...); err != nil {
				return fmt.Errorf("upsert %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Update merges c into the stored row and stamps updated_at.
// Returns false (and no error) if no row has the given id.
//
// Update does not touch synced_to_cloud unless c.Synced is set. Callers
// making content changes must pass Synced: ledger.Some(false).
func (s *Store) Update(ctx context.Context, id string, c ledger.Changes) (bool, error) {
	found := false
	err := s.withTx(ctx, "update", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
		current, err := scanTransaction(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", id, err)
		}

		next := current.Apply(c)
		next.UpdatedAt = s.clock.Now()
		next.Version = current.Version + 1
		if _, err := tx.ExecContext(ctx, upsertTransactionSQL, transactionArgs(next)...); err != nil {
			return fmt.Errorf("write %s: %w", id, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// SoftDelete moves a row to the trash: is_deleted=1, deleted_at=now,
// updated_at=now, synced_to_cloud=0, version+1.
//
// Returns false if the id is unknown or the row is already trashed; in both
// cases nothing is written, so deleted_at keeps its first value.
func (s *Store) SoftDelete(ctx context.Context, id string) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET is_deleted = 1, deleted_at = ?, updated_at = ?, synced_to_cloud = 0, version = version + 1
		WHERE id = ? AND is_deleted = 0
	`, now, now, id)
	if err != nil {
		return false, storageErr("soft delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("soft delete", err)
	}
	return n > 0, nil
}

// MarkSynced records cloudID and sets synced_to_cloud=1.
// No other column changes; unknown ids are ignored.
func (s *Store) MarkSynced(ctx context.Context, id, cloudID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET synced_to_cloud = 1, cloud_id = ? WHERE id = ?
	`, cloudID, id)
	if err != nil {
		return storageErr("mark synced", err)
	}
	return nil
}

// MarkSyncedAt is MarkSynced for a row pushed as it was at version
// (its Version when read). The cloud id is always recorded, but the row
// is only flagged synced if it has not been mutated since; otherwise it
// stays unsynced and the next push updates the remote row by cloud id.
//
// Every mutation bumps the version, so two writes within the same clock
// instant are still told apart.
//
// Returns whether the row was flagged synced.
func (s *Store) MarkSyncedAt(ctx context.Context, id, cloudID string, version int64) (bool, error) {
	marked := false
	err := s.withTx(ctx, "mark synced", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE transactions SET cloud_id = ? WHERE id = ?`, cloudID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions SET synced_to_cloud = 1
			WHERE id = ? AND version = ?
		`, id, version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		marked = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}

// SetSetting stores value under key as JSON, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	data, err := marshalSetting(value)
	if err != nil {
		return storageErr("set setting", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, data)
	if err != nil {
		return storageErr("set setting", err)
	}
	return nil
}

// DeleteSetting removes key. Missing keys are ignored.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return storageErr("delete setting", err)
	}
	return nil
}
