package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Type distinguishes income from expense.
type Type string

const (
	// Received is money coming in (income).
	Received Type = "received"
	// Sent is money going out (expense).
	Sent Type = "sent"
)

// Valid reports whether t is one of the known transaction types.
func (t Type) Valid() bool {
	return t == Received || t == Sent
}

// ParseType converts user input into a Type.
// Accepts "income"/"expense" as aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "received", "income", "in":
		return Received, nil
	case "sent", "expense", "out":
		return Sent, nil
	}
	return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", s)}
}

// Attachment references an encoded file. Locator is opaque: a local blob
// reference or a remote URL, depending on the encoder that produced it.
type Attachment struct {
	Name     string
	Locator  string
	MimeType string
}

// Transaction is a single income or expense record.
type Transaction struct {
	ID         string
	CloudID    Opt[string]
	Date       time.Time
	PersonName string
	Amount     decimal.Decimal
	Type       Type
	Notes      string
	Attachment Opt[Attachment]
	IsDeleted  bool
	DeletedAt  Opt[time.Time]
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Synced     bool

	// Version counts local mutations. The store bumps it on every write
	// to an existing row; it never leaves the device.
	Version int64
}

// Changes is a partial update for a stored transaction.
// Absent fields are left untouched.
//
// Callers applying content changes must also set Synced to Some(false);
// the store does not infer it.
type Changes struct {
	Date       Opt[time.Time]
	PersonName Opt[string]
	Amount     Opt[decimal.Decimal]
	Type       Opt[Type]
	Notes      Opt[string]
	Attachment Opt[Attachment]
	Synced     Opt[bool]
}

// HasContent reports whether c touches any user-entered field.
func (c Changes) HasContent() bool {
	return c.Date.IsSome() || c.PersonName.IsSome() || c.Amount.IsSome() ||
		c.Type.IsSome() || c.Notes.IsSome() || c.Attachment.IsSome()
}

// Apply returns a copy of t with c merged in. UpdatedAt is not touched.
func (t Transaction) Apply(c Changes) Transaction {
	if v, ok := c.Date.Get(); ok {
		t.Date = v
	}
	if v, ok := c.PersonName.Get(); ok {
		t.PersonName = v
	}
	if v, ok := c.Amount.Get(); ok {
		t.Amount = v
	}
	if v, ok := c.Type.Get(); ok {
		t.Type = v
	}
	if v, ok := c.Notes.Get(); ok {
		t.Notes = v
	}
	if c.Attachment.IsSome() {
		t.Attachment = c.Attachment
	}
	if v, ok := c.Synced.Get(); ok {
		t.Synced = v
	}
	return t
}

// SignedAmount returns the amount as a balance delta: positive for
// income, negative for expense.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Sent {
		return t.Amount.Neg()
	}
	return t.Amount
}

// NormalizeText trims surrounding whitespace and converts s to NFC so that
// visually identical names compare equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
