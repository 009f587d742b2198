package harness

import (
	"time"

	"github.com/roach88/tally/internal/ledger"
)

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// TxView is the golden-file rendering of a transaction.
type TxView struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	PersonName string `json:"person_name"`
	Amount     string `json:"amount"`
	Type       string `json:"type"`
	Notes      string `json:"notes,omitempty"`
	CloudID    string `json:"cloud_id,omitempty"`
	Deleted    bool   `json:"deleted"`
	Synced     bool   `json:"synced"`
}

func viewOf(t ledger.Transaction) TxView {
	return TxView{
		ID:         t.ID,
		Date:       t.Date.UTC().Format(time.DateOnly),
		PersonName: t.PersonName,
		Amount:     t.Amount.String(),
		Type:       string(t.Type),
		Notes:      t.Notes,
		CloudID:    t.CloudID.OrZero(),
		Deleted:    t.IsDeleted,
		Synced:     t.Synced,
	}
}

func viewsOf(ts []ledger.Transaction) []TxView {
	out := make([]TxView, 0, len(ts))
	for _, t := range ts {
		out = append(out, viewOf(t))
	}
	return out
}

// Snapshot is the tracker state observed after the last step.
type Snapshot struct {
	Stats        ledger.Stats `json:"stats"`
	Transactions []TxView     `json:"transactions"`
	Trash        []TxView     `json:"trash"`
	Unsynced     int          `json:"unsynced"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step matched its expected outcome and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
	Final  Snapshot     `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(step int, action, outcome, detail string) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:    step,
		Action:  action,
		Outcome: outcome,
		Detail:  detail,
	})
}
