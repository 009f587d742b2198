package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/remote"
)

// LocalStore is the part of the local store the engine reads and writes.
type LocalStore interface {
	GetUnsynced(ctx context.Context) ([]ledger.Transaction, error)
	MarkSyncedAt(ctx context.Context, id, cloudID string, version int64) (bool, error)
	BulkPut(ctx context.Context, ts []ledger.Transaction) error
}

// Session is the signed-in account sync operations act for.
type Session struct {
	OwnerID string
	Remote  remote.Adapter
}

// Valid reports whether s identifies an account and a store to talk to.
func (s Session) Valid() bool {
	return s.OwnerID != "" && s.Remote != nil
}

// PushResult summarises one push cycle.
type PushResult struct {
	// Skipped is true if another push was in flight and this one did nothing.
	Skipped bool `json:"skipped"`

	// Attempted is the number of unsynced rows read at the start of the cycle.
	Attempted int `json:"attempted"`

	// Synced is the number of rows marked synced.
	Synced int `json:"synced"`

	// Stale is the number of rows uploaded but changed locally meanwhile.
	// They keep their new cloud id and go out again on the next push.
	Stale int `json:"stale"`

	// Failed is the number of rows the remote store rejected.
	Failed int `json:"failed"`
}

// MergeResult summarises a merge.
type MergeResult struct {
	Attempted int `json:"attempted"`
	Merged    int `json:"merged"`

	// Stale is the number of rows uploaded but changed locally meanwhile.
	// They keep their new cloud id and stay unsynced until the next push.
	Stale int `json:"stale"`
}

// Engine runs push, import and merge against a local store.
//
// Thread-safety: Engine is safe for concurrent use. Push and Merge never
// overlap; Import does not take the push guard.
type Engine struct {
	local  LocalStore
	ids    ledger.IDGenerator
	logger *slog.Logger

	// pushMu is held for the whole of a push or merge cycle.
	pushMu  sync.Mutex
	syncing atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDs sets the generator for local ids of imported rows.
func WithIDs(g ledger.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine over local.
func New(local LocalStore, opts ...Option) *Engine {
	e := &Engine{
		local:  local,
		ids:    ledger.UUIDGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Syncing reports whether a push or merge is in flight.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// Push uploads every unsynced local row for the session's owner.
//
// If a push is already running, Push returns immediately with
// PushResult.Skipped set. Remote failures are logged per row and do not
// make Push fail; only a local store failure is returned.
func (e *Engine) Push(ctx context.Context, s Session) (PushResult, error) {
	if !s.Valid() {
		return PushResult{}, ErrSignedOut
	}
	if !e.pushMu.TryLock() {
		e.logger.Debug("push already in flight, dropping trigger")
		return PushResult{Skipped: true}, nil
	}
	defer e.pushMu.Unlock()
	e.syncing.Store(true)
	defer e.syncing.Store(false)

	rows, err := e.local.GetUnsynced(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("push: %w", err)
	}

	res := PushResult{Attempted: len(rows)}
	for _, t := range rows {
		cloudID, err := e.pushRow(ctx, s, t)
		if err != nil {
			res.Failed++
			e.logger.Warn("push row failed", "id", t.ID, "owner", s.OwnerID, "error", err)
			continue
		}
		ok, err := e.local.MarkSyncedAt(ctx, t.ID, cloudID, t.Version)
		if err != nil {
			return res, fmt.Errorf("push: %w", err)
		}
		if !ok {
			res.Stale++
			e.logger.Debug("row changed during push", "id", t.ID, "cloud_id", cloudID)
			continue
		}
		res.Synced++
	}

	if res.Attempted > 0 {
		e.logger.Info("push complete",
			"owner", s.OwnerID,
			"attempted", res.Attempted,
			"synced", res.Synced,
			"stale", res.Stale,
			"failed", res.Failed,
		)
	}
	return res, nil
}

// pushRow writes one row remotely and returns its remote id. A row with a
// cloud id overwrites that remote row; if the owner has no such row (it was
// removed remotely, or belongs to a previous account) a new one is created.
func (e *Engine) pushRow(ctx context.Context, s Session, t ledger.Transaction) (string, error) {
	if cloudID, ok := t.CloudID.Get(); ok {
		err := s.Remote.UpdateByRemoteID(ctx, s.OwnerID, cloudID, remote.FullPatch(t))
		if !errors.Is(err, remote.ErrNotFound) {
			return cloudID, err
		}
		e.logger.Debug("remote row missing, inserting", "id", t.ID, "cloud_id", cloudID)
	}
	return s.Remote.Insert(ctx, s.OwnerID, remote.FromTransaction(t))
}

// Import copies every remote row of the session's owner into the local store
// as a new synced local row and returns how many were added. Nothing is
// written if the owner has no remote rows.
//
// Import does not look for local rows describing the same transaction, so
// importing twice, or importing on top of unsynced local data, can produce
// duplicates.
func (e *Engine) Import(ctx context.Context, s Session) (int, error) {
	if !s.Valid() {
		return 0, ErrSignedOut
	}
	rows, err := s.Remote.Select(ctx, s.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	local := make([]ledger.Transaction, len(rows))
	for i, r := range rows {
		local[i] = r.ToTransaction(e.ids.NewID())
	}
	if err := e.local.BulkPut(ctx, local); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}

	e.logger.Info("imported remote rows", "owner", s.OwnerID, "count", len(local))
	return len(local), nil
}

// Merge inserts every unsynced local row as a new remote row owned by the
// session's owner and marks it synced with the new remote id.
//
// Merge waits for an in-flight push to finish rather than being dropped.
// If any row fails or is changed locally while it uploads, the others stay
// synced and a *MergeError is returned. A changed row keeps its new cloud
// id, so the next push updates that remote row instead of inserting again.
func (e *Engine) Merge(ctx context.Context, s Session) (MergeResult, error) {
	if !s.Valid() {
		return MergeResult{}, ErrSignedOut
	}
	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	e.syncing.Store(true)
	defer e.syncing.Store(false)

	rows, err := e.local.GetUnsynced(ctx)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	res := MergeResult{Attempted: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	var errs []error
	for _, t := range rows {
		cloudID, err := s.Remote.Insert(ctx, s.OwnerID, remote.FromTransaction(t))
		if err != nil {
			e.logger.Warn("merge row failed", "id", t.ID, "owner", s.OwnerID, "error", err)
			errs = append(errs, fmt.Errorf("row %s: %w", t.ID, err))
			continue
		}
		ok, err := e.local.MarkSyncedAt(ctx, t.ID, cloudID, t.Version)
		if err != nil {
			return res, fmt.Errorf("merge: %w", err)
		}
		if !ok {
			res.Stale++
			e.logger.Debug("row changed during merge", "id", t.ID, "cloud_id", cloudID)
			errs = append(errs, fmt.Errorf("row %s: %w", t.ID, ErrChangedDuringSync))
			continue
		}
		res.Merged++
	}

	e.logger.Info("merge complete",
		"owner", s.OwnerID,
		"attempted", res.Attempted,
		"merged", res.Merged,
		"stale", res.Stale,
	)
	if len(errs) > 0 {
		return res, &MergeError{Attempted: res.Attempted, Failed: len(errs), Errs: errs}
	}
	return res, nil
}
