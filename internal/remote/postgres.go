package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	date            TIMESTAMPTZ NOT NULL,
	person_name     TEXT NOT NULL,
	amount          NUMERIC NOT NULL CHECK (amount > 0),
	type            TEXT NOT NULL CHECK (type IN ('received', 'sent')),
	notes           TEXT NOT NULL DEFAULT '',
	attachment_name TEXT,
	attachment_url  TEXT,
	attachment_type TEXT,
	is_deleted      BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
ALTER TABLE transactions ALTER COLUMN amount TYPE NUMERIC;
`

const recordColumns = `id, user_id, date, person_name, amount, type, notes,
	attachment_name, attachment_url, attachment_type,
	is_deleted, deleted_at, created_at, updated_at`

// Postgres is an Adapter backed by a PostgreSQL table via lib/pq.
type Postgres struct {
	db  *sql.DB
	ids ledger.IDGenerator
}

// OpenPostgres connects to connStr and creates the transactions table if needed.
func OpenPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{db: db, ids: ledger.UUIDGenerator{}}, nil
}

// DB exposes the connection so the server can share it for accounts.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Insert implements Adapter.
func (p *Postgres) Insert(ctx context.Context, ownerID string, rec Record) (string, error) {
	if ownerID == "" {
		return "", &Error{Op: "insert", Err: ErrUnauthenticated}
	}
	rec.ID = p.ids.NewID()
	var id string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, recordArgs(ownerID, rec)...).Scan(&id)
	if err != nil {
		return "", wrap("insert", err)
	}
	return id, nil
}

// Upsert implements Adapter. A conflicting id owned by someone else is
// left untouched and reported as unauthenticated.
func (p *Postgres) Upsert(ctx context.Context, ownerID string, rec Record) (string, error) {
	if ownerID == "" {
		return "", &Error{Op: "upsert", Err: ErrUnauthenticated}
	}
	if rec.ID == "" {
		rec.ID = p.ids.NewID()
	}
	var id string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			date = excluded.date,
			person_name = excluded.person_name,
			amount = excluded.amount,
			type = excluded.type,
			notes = excluded.notes,
			attachment_name = excluded.attachment_name,
			attachment_url = excluded.attachment_url,
			attachment_type = excluded.attachment_type,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at
		WHERE transactions.user_id = excluded.user_id
		RETURNING id
	`, recordArgs(ownerID, rec)...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &Error{Op: "upsert", Err: fmt.Errorf("row %s belongs to another owner: %w", rec.ID, ErrUnauthenticated)}
	}
	if err != nil {
		return "", wrap("upsert", err)
	}
	return id, nil
}

// Select implements Adapter.
func (p *Postgres) Select(ctx context.Context, ownerID string) ([]Record, error) {
	if ownerID == "" {
		return nil, &Error{Op: "select", Err: ErrUnauthenticated}
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, id ASC
	`, ownerID)
	if err != nil {
		return nil, wrap("select", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("select", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("select", err)
	}
	return out, nil
}

// UpdateByRemoteID implements Adapter.
func (p *Postgres) UpdateByRemoteID(ctx context.Context, ownerID, remoteID string, patch Patch) error {
	if ownerID == "" {
		return &Error{Op: "update", Err: ErrUnauthenticated}
	}

	sets, args := patchAssignments(patch)
	sets = append(sets, "updated_at = now()")
	args = append(args, remoteID, ownerID)
	query := fmt.Sprintf(
		"UPDATE transactions SET %s WHERE id = $%d AND user_id = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update", err)
	}
	if n == 0 {
		return &Error{Op: "update", Err: ErrNotFound}
	}
	return nil
}

// patchAssignments returns "col = $n" fragments and their args for the
// non-nil fields of p, numbered from $1.
func patchAssignments(p Patch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Date != nil {
		add("date", *p.Date)
	}
	if p.PersonName != nil {
		add("person_name", *p.PersonName)
	}
	if p.Amount != nil {
		add("amount", p.Amount.String())
	}
	if p.Type != nil {
		add("type", *p.Type)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.AttachmentName != nil {
		add("attachment_name", *p.AttachmentName)
		add("attachment_url", nullable(p.AttachmentURL))
		add("attachment_type", nullable(p.AttachmentType))
	}
	if p.IsDeleted != nil {
		add("is_deleted", *p.IsDeleted)
		if !*p.IsDeleted {
			sets = append(sets, "deleted_at = NULL")
		}
	}
	if p.DeletedAt != nil {
		add("deleted_at", *p.DeletedAt)
	}
	return sets, args
}

func recordArgs(ownerID string, r Record) []any {
	now := time.Now().UTC()
	created, updated := r.CreatedAt, r.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	var deletedAt pq.NullTime
	if r.DeletedAt != nil {
		deletedAt = pq.NullTime{Time: *r.DeletedAt, Valid: true}
	}
	return []any{
		r.ID,
		ownerID,
		r.Date,
		r.PersonName,
		r.Amount.String(),
		r.Type,
		r.Notes,
		nullable(r.AttachmentName),
		nullable(r.AttachmentURL),
		nullable(r.AttachmentType),
		r.IsDeleted,
		deletedAt,
		created,
		updated,
	}
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r               Record
		amount          string
		name, url, mime sql.NullString
		deletedAt       pq.NullTime
	)
	err := rows.Scan(
		&r.ID, &r.OwnerID, &r.Date, &r.PersonName, &amount, &r.Type, &r.Notes,
		&name, &url, &mime,
		&r.IsDeleted, &deletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return Record{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if name.Valid {
		r.AttachmentName = &name.String
		r.AttachmentURL = &url.String
		r.AttachmentType = &mime.String
	}
	if deletedAt.Valid {
		at := deletedAt.Time
		r.DeletedAt = &at
	}
	return r, nil
}
