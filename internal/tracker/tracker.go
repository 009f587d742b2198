package tracker

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/tally/internal/attach"
	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/syncer"
)

// Tracker is the unified transaction facade.
//
// Thread-safety: Tracker is safe for concurrent use.
type Tracker struct {
	store   *store.Store
	engine  *syncer.Engine
	encoder attach.Encoder
	clock   ledger.Clock
	ids     ledger.IDGenerator
	loc     *time.Location
	logger  *slog.Logger

	// refetchMu is held across a refetch's read and its assignment.
	refetchMu sync.Mutex

	mu        sync.RWMutex
	active    []ledger.Transaction
	trashed   []ledger.Transaction
	loading   bool
	session   syncer.Session
	online    bool
	hasMerged bool

	// pendingImport is set when sign-in happened offline.
	pendingImport bool

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for timestamps and the daily stats bucket.
func WithClock(c ledger.Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithIDs sets the generator for new local ids.
func WithIDs(g ledger.IDGenerator) Option {
	return func(t *Tracker) {
		t.ids = g
	}
}

// WithLocation sets the time zone that defines "today" for daily stats.
// Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		t.loc = loc
	}
}

// WithEncoder sets the attachment encoder. Without one, attachments are rejected.
func WithEncoder(e attach.Encoder) Option {
	return func(t *Tracker) {
		t.encoder = e
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// New creates a signed-out, online tracker over st. Call Load before
// reading snapshots.
func New(st *store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  st,
		clock:  ledger.SystemClock{},
		ids:    ledger.UUIDGenerator{},
		loc:    time.Local,
		logger: slog.Default(),
		online: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.engine = syncer.New(st, syncer.WithIDs(t.ids), syncer.WithLogger(t.logger))
	t.bgCtx, t.bgCancel = context.WithCancel(context.Background())
	return t
}

// Close cancels background pushes and waits for them to return.
func (t *Tracker) Close() {
	t.bgCancel()
	t.bg.Wait()
}

// Wait blocks until every background push started so far has finished.
func (t *Tracker) Wait() {
	t.bg.Wait()
}

// Load reads both lists from the store. IsLoading is true while it runs.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.loading = false
		t.mu.Unlock()
	}()
	return t.Refetch(ctx)
}

// Refetch replaces the snapshots with the store's current contents.
// Refetches run one at a time, so a snapshot read earlier never replaces
// one read later.
func (t *Tracker) Refetch(ctx context.Context) error {
	t.refetchMu.Lock()
	defer t.refetchMu.Unlock()

	active, err := t.store.GetActive(ctx)
	if err != nil {
		return err
	}
	trashed, err := t.store.GetTrashed(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.active, t.trashed = active, trashed
	t.mu.Unlock()
	return nil
}

// Transactions returns the active list, newest date first.
func (t *Tracker) Transactions() []ledger.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.active)
}

// TrashedTransactions returns the trash, most recently deleted first.
func (t *Tracker) TrashedTransactions() []ledger.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.trashed)
}

// IsLoading reports whether Load is in progress.
func (t *Tracker) IsLoading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loading
}

// GetStats aggregates the active list. Daily figures cover the current day
// in the tracker's location.
func (t *Tracker) GetStats() ledger.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ledger.ComputeStats(t.active, t.trashed, t.clock.Now(), t.loc)
}

// AddTransaction validates f, stores it as a new unsynced transaction and
// returns it. Invalid input is rejected with a *ledger.ValidationError
// before anything is written.
func (t *Tracker) AddTransaction(ctx context.Context, f ledger.FormData) (ledger.Transaction, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return ledger.Transaction{}, err
	}

	var att ledger.Opt[ledger.Attachment]
	if f.Attachment != nil {
		a, err := t.encode(ctx, *f.Attachment)
		if err != nil {
			return ledger.Transaction{}, err
		}
		att = ledger.Some(a)
	}

	now := t.clock.Now()
	tx := ledger.Transaction{
		ID:         t.ids.NewID(),
		Date:       f.Date,
		PersonName: f.PersonName,
		Amount:     f.Amount,
		Type:       f.Type,
		Notes:      f.Notes,
		Attachment: att,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.store.Put(ctx, tx); err != nil {
		return ledger.Transaction{}, err
	}

	t.logger.Debug("transaction added", "id", tx.ID)
	t.changed(ctx)
	return tx, nil
}

// UpdateTransaction applies p to an active transaction and marks it
// unsynced. Unknown ids are ignored. Trashed transactions cannot be
// edited and return ledger.ErrTrashed.
func (t *Tracker) UpdateTransaction(ctx context.Context, id string, p ledger.Patch) error {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Empty() {
		return nil
	}

	cur, ok, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if cur.IsDeleted {
		return ledger.ErrTrashed
	}

	c := ledger.Changes{
		Date:       p.Date,
		PersonName: p.PersonName,
		Amount:     p.Amount,
		Type:       p.Type,
		Notes:      p.Notes,
		Synced:     ledger.Some(false),
	}
	if p.Attachment != nil {
		a, err := t.encode(ctx, *p.Attachment)
		if err != nil {
			return err
		}
		c.Attachment = ledger.Some(a)
	}

	updated, err := t.store.Update(ctx, id, c)
	if err != nil {
		return err
	}
	if updated {
		t.logger.Debug("transaction updated", "id", id)
		t.changed(ctx)
	}
	return nil
}

// SoftDeleteTransaction moves a transaction to the trash. Unknown ids and
// already trashed transactions are left as they are.
func (t *Tracker) SoftDeleteTransaction(ctx context.Context, id string) error {
	deleted, err := t.store.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		t.logger.Debug("transaction trashed", "id", id)
		t.changed(ctx)
	}
	return nil
}

// GetUnsyncedCount returns the number of local rows not yet reflected remotely.
func (t *Tracker) GetUnsyncedCount(ctx context.Context) (int, error) {
	return t.store.CountUnsynced(ctx)
}

func (t *Tracker) encode(ctx context.Context, u ledger.Upload) (ledger.Attachment, error) {
	if t.encoder == nil {
		return ledger.Attachment{}, &ledger.ValidationError{Field: "attachment", Message: "attachments are not configured"}
	}
	return t.encoder.Encode(ctx, u)
}

// changed refreshes the snapshots after a successful write and schedules a
// push. A refetch failure is logged: the write itself has succeeded.
func (t *Tracker) changed(ctx context.Context) {
	if err := t.Refetch(ctx); err != nil {
		t.logger.Error("refetch after write failed", "error", err)
	}
	t.schedulePush()
}
