package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// timeLayout is fixed width (always nine fractional digits, always Z) so
// that ORDER BY on the TEXT column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// transactionColumns is the column list shared by every SELECT and INSERT.
const transactionColumns = `id, cloud_id, date, person_name, amount, type, notes,
	attachment_name, attachment_locator, attachment_mime,
	is_deleted, deleted_at, created_at, updated_at, synced_to_cloud, version`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(o ledger.Opt[string]) sql.NullString {
	v, ok := o.Get()
	return sql.NullString{String: v, Valid: ok}
}

func nullTime(o ledger.Opt[time.Time]) sql.NullString {
	v, ok := o.Get()
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(v), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// transactionArgs returns the values for transactionColumns, in order.
func transactionArgs(t ledger.Transaction) []any {
	var name, locator, mime sql.NullString
	if a, ok := t.Attachment.Get(); ok {
		name = sql.NullString{String: a.Name, Valid: true}
		locator = sql.NullString{String: a.Locator, Valid: true}
		mime = sql.NullString{String: a.MimeType, Valid: true}
	}
	return []any{
		t.ID,
		nullString(t.CloudID),
		formatTime(t.Date),
		t.PersonName,
		t.Amount.String(),
		string(t.Type),
		t.Notes,
		name,
		locator,
		mime,
		boolInt(t.IsDeleted),
		nullTime(t.DeletedAt),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
		boolInt(t.Synced),
		t.Version,
	}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction scans a row selected with transactionColumns.
func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		t                    ledger.Transaction
		cloudID, deletedAt   sql.NullString
		name, locator, mime  sql.NullString
		date, amount, typ    string
		createdAt, updatedAt string
		isDeleted, synced    int
	)
	err := row.Scan(
		&t.ID, &cloudID, &date, &t.PersonName, &amount, &typ, &t.Notes,
		&name, &locator, &mime,
		&isDeleted, &deletedAt, &createdAt, &updatedAt, &synced, &t.Version,
	)
	if err != nil {
		return ledger.Transaction{}, err
	}

	if t.Date, err = parseTime(date); err != nil {
		return ledger.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ledger.Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Type = ledger.Type(typ)
	t.IsDeleted = isDeleted != 0
	t.Synced = synced != 0

	if cloudID.Valid {
		t.CloudID = ledger.Some(cloudID.String)
	}
	if deletedAt.Valid {
		at, err := parseTime(deletedAt.String)
		if err != nil {
			return ledger.Transaction{}, err
		}
		t.DeletedAt = ledger.Some(at)
	}
	if name.Valid {
		t.Attachment = ledger.Some(ledger.Attachment{
			Name:     name.String,
			Locator:  locator.String,
			MimeType: mime.String,
		})
	}
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]ledger.Transaction, error) {
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	// Return empty slice instead of nil
	if out == nil {
		out = []ledger.Transaction{}
	}
	return out, nil
}

func marshalSetting(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal setting: %w", err)
	}
	return string(data), nil
}
