package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/syncer"
	"github.com/roach88/tally/internal/testutil"
	"github.com/roach88/tally/internal/tracker"
)

// errInjected is returned by the remote store while a fail_remote step
// is in effect.
var errInjected = errors.New("injected remote failure")

// Harness is the test execution engine.
// It owns a tracker over an in-memory store, a manual clock and an
// in-memory remote store, all private to one scenario run.
type Harness struct {
	store   *store.Store
	tracker *tracker.Tracker
	rows    *remote.Memory
	clock   *testutil.ManualClock
	logger  *slog.Logger

	// refs holds the ids of successfully added transactions, in order.
	refs []string
}

// Run executes a test scenario and returns the result.
//
// Steps run sequentially. After each step the harness waits for any
// background push to finish before recording the outcome, so the trace
// does not depend on goroutine scheduling.
//
// The error return is reserved for harness failures (the store could not
// be opened, a remote row could not be seeded). Step and assertion
// mismatches are reported through Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, detail, err := h.execute(ctx, step)
		h.tracker.Wait()
		result.addTrace(i+1, step.Action, outcome, detail)

		if step.Expect != "" && outcome != step.Expect {
			msg := fmt.Sprintf("step %d (%s): expected outcome %q, got %q", i+1, step.Action, step.Expect, outcome)
			if err != nil {
				msg += ": " + err.Error()
			}
			result.AddError(msg)
		}
	}

	snap, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	result.Final = snap

	for _, a := range scenario.Assertions {
		if err := h.check(a, result); err != nil {
			result.AddError(err.Error())
		}
	}

	h.logger.Info("scenario completed",
		"name", scenario.Name,
		"pass", result.Pass,
		"steps", len(scenario.Steps),
	)
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario) (*Harness, error) {
	startText := scenario.Clock
	if startText == "" {
		startText = DefaultClock
	}
	start, err := time.Parse(time.RFC3339, startText)
	if err != nil {
		return nil, fmt.Errorf("parse clock: %w", err)
	}

	// Discard tracker logs; scenario failures surface through Result.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(start)

	st, err := store.Open(":memory:", store.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rows := remote.NewMemory(
		remote.WithIDs(testutil.NewSeqIDs("cloud")),
		remote.WithMemoryClock(clock),
	)
	for i, r := range scenario.Remote {
		rec, err := seedRecord(r)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("remote row %d: %w", i, err)
		}
		if _, err := rows.Insert(ctx, r.Owner, rec); err != nil {
			st.Close()
			return nil, fmt.Errorf("seed remote row %d: %w", i, err)
		}
	}

	tr := tracker.New(st,
		tracker.WithClock(clock),
		tracker.WithIDs(testutil.NewSeqIDs("tx")),
		tracker.WithLocation(time.UTC),
		tracker.WithLogger(logger),
	)
	if err := tr.Load(ctx); err != nil {
		tr.Close()
		st.Close()
		return nil, fmt.Errorf("load tracker: %w", err)
	}

	return &Harness{
		store:   st,
		tracker: tr,
		rows:    rows,
		clock:   clock,
		logger:  logger,
	}, nil
}

func (h *Harness) close() {
	h.tracker.Close()
	h.store.Close()
}

func seedRecord(r RemoteRow) (remote.Record, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return remote.Record{}, fmt.Errorf("amount: %w", err)
	}
	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return remote.Record{}, fmt.Errorf("date: %w", err)
	}
	return remote.Record{
		Date:       date,
		PersonName: r.PersonName,
		Amount:     amount,
		Type:       r.Type,
		Notes:      r.Notes,
	}, nil
}

// execute runs one step and classifies its outcome.
func (h *Harness) execute(ctx context.Context, step Step) (string, string, error) {
	detail, err := h.apply(ctx, step)
	return outcomeOf(err), detail, err
}

func (h *Harness) apply(ctx context.Context, step Step) (string, error) {
	args := step.Args
	tr := h.tracker

	switch step.Action {
	case ActionAdd:
		f, err := h.formData(args)
		if err != nil {
			return "", err
		}
		tx, err := tr.AddTransaction(ctx, f)
		if err != nil {
			return "", err
		}
		h.refs = append(h.refs, tx.ID)
		return tx.ID, nil

	case ActionUpdate:
		id, err := h.ref(args)
		if err != nil {
			return "", err
		}
		p, err := patchOf(args)
		if err != nil {
			return "", err
		}
		return "", tr.UpdateTransaction(ctx, id, p)

	case ActionDelete:
		id, err := h.ref(args)
		if err != nil {
			return "", err
		}
		return "", tr.SoftDeleteTransaction(ctx, id)

	case ActionSignIn:
		owner, _ := argString(args, "owner")
		n, err := tr.SignIn(ctx, owner, h.rows)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("imported=%d", n), nil

	case ActionSignOut:
		return "", tr.SignOut(ctx)

	case ActionOffline:
		tr.SetOnline(ctx, false)
		return "", nil

	case ActionOnline:
		tr.SetOnline(ctx, true)
		return "", nil

	case ActionSync:
		res, err := tr.SyncNow(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("attempted=%d synced=%d stale=%d failed=%d",
			res.Attempted, res.Synced, res.Stale, res.Failed), nil

	case ActionMerge:
		ok, err := tr.MergeGuestDataToCloud(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("merged=%t", ok), nil

	case ActionImport:
		n, err := tr.ImportFromCloud(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("imported=%d", n), nil

	case ActionAdvance:
		by, _ := argString(args, "by")
		d, err := time.ParseDuration(by)
		if err != nil {
			return "", fmt.Errorf("advance: %w", err)
		}
		return h.clock.Advance(d).Format(time.RFC3339), nil

	case ActionFailRemote:
		name, _ := argString(args, "person_name")
		op, _ := argString(args, "op")
		h.rows.SetFault(func(gotOp, _ string, rec remote.Record) error {
			if op != "" && gotOp != op {
				return nil
			}
			if name != "" && rec.PersonName != name {
				return nil
			}
			return errInjected
		})
		return "", nil

	case ActionHealRemote:
		h.rows.SetFault(nil)
		return "", nil
	}

	return "", fmt.Errorf("unknown action %q", step.Action)
}

// outcomeOf maps an error to one of the Outcome* constants.
// MergeError is checked before remote errors because it wraps them.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case ledger.IsValidationError(err):
		return OutcomeValidation
	case errors.Is(err, ledger.ErrTrashed):
		return OutcomeTrashed
	case errors.Is(err, syncer.ErrSignedOut):
		return OutcomeSignedOut
	case syncer.IsMergeError(err):
		return OutcomeMerge
	case ledger.IsStorageError(err):
		return OutcomeStorage
	case remote.IsRemoteError(err):
		return OutcomeRemote
	default:
		return OutcomeError
	}
}

func (h *Harness) ref(args map[string]interface{}) (string, error) {
	v, ok := argString(args, "ref")
	if !ok {
		return "", fmt.Errorf("ref is required")
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 || n > len(h.refs) {
		return "", fmt.Errorf("ref %s does not name an added transaction", v)
	}
	return h.refs[n-1], nil
}

// formData builds the add form. date defaults to the current clock day.
func (h *Harness) formData(args map[string]interface{}) (ledger.FormData, error) {
	f := ledger.FormData{
		Date: h.clock.Now().UTC().Truncate(24 * time.Hour),
	}
	if v, ok := argString(args, "date"); ok {
		d, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.Date = d
	}
	f.PersonName, _ = argString(args, "person_name")
	if v, ok := argString(args, "amount"); ok {
		a, err := parseAmount(v)
		if err != nil {
			return f, err
		}
		f.Amount = a
	}
	if v, ok := argString(args, "type"); ok {
		f.Type = ledger.Type(v)
	}
	f.Notes, _ = argString(args, "notes")
	return f, nil
}

func patchOf(args map[string]interface{}) (ledger.Patch, error) {
	var p ledger.Patch
	if v, ok := argString(args, "date"); ok {
		d, err := parseDate(v)
		if err != nil {
			return p, err
		}
		p.Date = ledger.Some(d)
	}
	if v, ok := argString(args, "person_name"); ok {
		p.PersonName = ledger.Some(v)
	}
	if v, ok := argString(args, "amount"); ok {
		a, err := parseAmount(v)
		if err != nil {
			return p, err
		}
		p.Amount = ledger.Some(a)
	}
	if v, ok := argString(args, "type"); ok {
		p.Type = ledger.Some(ledger.Type(v))
	}
	if v, ok := argString(args, "notes"); ok {
		p.Notes = ledger.Some(v)
	}
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: "date", Message: "date must be YYYY-MM-DD"}
	}
	return d, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	a, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ledger.ValidationError{Field: "amount", Message: "amount must be a number"}
	}
	return a, nil
}

// argString returns args[key] rendered as a string. YAML dates may decode
// as time.Time and are rendered as YYYY-MM-DD.
func argString(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.DateOnly), true
	}
	return fmt.Sprint(v), true
}

// snapshot captures the tracker state after the last step.
func (h *Harness) snapshot(ctx context.Context) (Snapshot, error) {
	unsynced, err := h.tracker.GetUnsyncedCount(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count unsynced: %w", err)
	}
	return Snapshot{
		Stats:        h.tracker.GetStats(),
		Transactions: viewsOf(h.tracker.Transactions()),
		Trash:        viewsOf(h.tracker.TrashedTransactions()),
		Unsynced:     unsynced,
	}, nil
}
