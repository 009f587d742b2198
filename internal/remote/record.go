package remote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// Record is a transaction row as stored remotely (snake_case on the wire).
// The binding tags are checked by the cloud server; the amount tags are
// registered by ledger.RegisterValidations.
type Record struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"user_id"`
	Date           time.Time       `json:"date"`
	PersonName     string          `json:"person_name" binding:"required,max=200"`
	Amount         decimal.Decimal `json:"amount" binding:"positive,cents"`
	Type           string          `json:"type" binding:"oneof=received sent"`
	Notes          string          `json:"notes" binding:"max=2000"`
	AttachmentName *string         `json:"attachment_name,omitempty"`
	AttachmentURL  *string         `json:"attachment_url,omitempty"`
	AttachmentType *string         `json:"attachment_type,omitempty"`
	IsDeleted      bool            `json:"is_deleted"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Patch is a partial update of a remote row. Nil fields are left untouched.
type Patch struct {
	Date           *time.Time       `json:"date,omitempty"`
	PersonName     *string          `json:"person_name,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Type           *string          `json:"type,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	AttachmentName *string          `json:"attachment_name,omitempty"`
	AttachmentURL  *string          `json:"attachment_url,omitempty"`
	AttachmentType *string          `json:"attachment_type,omitempty"`
	IsDeleted      *bool            `json:"is_deleted,omitempty"`
	DeletedAt      *time.Time       `json:"deleted_at,omitempty"`
}

// FromTransaction builds the remote row for a local transaction.
// ID is the transaction's cloud id, empty if it has never been synced.
func FromTransaction(t ledger.Transaction) Record {
	r := Record{
		ID:         t.CloudID.OrZero(),
		Date:       t.Date,
		PersonName: t.PersonName,
		Amount:     t.Amount,
		Type:       string(t.Type),
		Notes:      t.Notes,
		IsDeleted:  t.IsDeleted,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
	if a, ok := t.Attachment.Get(); ok {
		r.AttachmentName = &a.Name
		r.AttachmentURL = &a.Locator
		r.AttachmentType = &a.MimeType
	}
	if at, ok := t.DeletedAt.Get(); ok {
		r.DeletedAt = &at
	}
	return r
}

// FullPatch returns a patch that overwrites every user field of the remote
// row with the local transaction's values.
func FullPatch(t ledger.Transaction) Patch {
	r := FromTransaction(t)
	return Patch{
		Date:           &r.Date,
		PersonName:     &r.PersonName,
		Amount:         &r.Amount,
		Type:           &r.Type,
		Notes:          &r.Notes,
		AttachmentName: r.AttachmentName,
		AttachmentURL:  r.AttachmentURL,
		AttachmentType: r.AttachmentType,
		IsDeleted:      &r.IsDeleted,
		DeletedAt:      r.DeletedAt,
	}
}

// ToTransaction maps a remote row onto a new local entity with the given
// local id. The result is marked synced with CloudID = r.ID.
func (r Record) ToTransaction(localID string) ledger.Transaction {
	t := ledger.Transaction{
		ID:         localID,
		CloudID:    ledger.Some(r.ID),
		Date:       r.Date.UTC(),
		PersonName: r.PersonName,
		Amount:     r.Amount,
		Type:       ledger.Type(r.Type),
		Notes:      r.Notes,
		IsDeleted:  r.IsDeleted,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
		Synced:     true,
	}
	if r.AttachmentName != nil {
		t.Attachment = ledger.Some(ledger.Attachment{
			Name:     *r.AttachmentName,
			Locator:  deref(r.AttachmentURL),
			MimeType: deref(r.AttachmentType),
		})
	}
	if r.IsDeleted {
		at := r.UpdatedAt.UTC()
		if r.DeletedAt != nil {
			at = r.DeletedAt.UTC()
		}
		t.DeletedAt = ledger.Some(at)
	}
	return t
}

// Apply merges p into r.
func (r Record) Apply(p Patch) Record {
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.PersonName != nil {
		r.PersonName = *p.PersonName
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.AttachmentName != nil {
		r.AttachmentName = p.AttachmentName
		r.AttachmentURL = p.AttachmentURL
		r.AttachmentType = p.AttachmentType
	}
	if p.IsDeleted != nil {
		r.IsDeleted = *p.IsDeleted
		if !r.IsDeleted {
			r.DeletedAt = nil
		}
	}
	if p.DeletedAt != nil {
		r.DeletedAt = p.DeletedAt
	}
	return r
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
