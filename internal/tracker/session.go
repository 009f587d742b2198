package tracker

import (
	"context"
	"time"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/syncer"
)

// Settings keys.
const (
	settingSession        = "session"
	settingMergeDismissed = "merge_prompt_dismissed"
	settingLastSyncAt     = "last_sync_at"
)

// SavedSession is the sign-in state kept in the settings table so a new
// process can resume it without signing in again.
type SavedSession struct {
	OwnerID   string `json:"owner_id"`
	Token     string `json:"token"`
	RemoteURL string `json:"remote_url"`
}

// IsSignedIn reports whether a session is active.
func (t *Tracker) IsSignedIn() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session.Valid()
}

// OwnerID returns the signed-in owner, or "" when signed out.
func (t *Tracker) OwnerID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session.OwnerID
}

// IsOnline reports the last connectivity state given to SetOnline.
func (t *Tracker) IsOnline() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online
}

// IsSyncing reports whether a push or merge is in flight.
func (t *Tracker) IsSyncing() bool {
	return t.engine.Syncing()
}

// HasMerged reports whether guest data was merged during this session.
func (t *Tracker) HasMerged() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasMerged
}

// SignIn starts a session for ownerID against rows and imports the
// account's remote rows. Local rows created while signed out stay unsynced
// until MergeGuestDataToCloud.
//
// A failed import is logged and does not fail the sign-in. When offline,
// the import runs on the next transition to online. It returns the number
// of rows imported.
func (t *Tracker) SignIn(ctx context.Context, ownerID string, rows remote.Adapter) (int, error) {
	sess := syncer.Session{OwnerID: ownerID, Remote: rows}
	if !sess.Valid() {
		return 0, syncer.ErrSignedOut
	}
	if err := t.store.DeleteSetting(ctx, settingMergeDismissed); err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.session = sess
	t.hasMerged = false
	online := t.online
	t.pendingImport = !online
	t.mu.Unlock()

	t.logger.Info("signed in", "owner", ownerID, "online", online)
	if !online {
		return 0, nil
	}
	return t.importOnce(ctx, sess)
}

// Resume restores a session saved by an earlier process. Unlike SignIn it
// does not import; the rows were imported when the session began.
func (t *Tracker) Resume(ownerID string, rows remote.Adapter) error {
	sess := syncer.Session{OwnerID: ownerID, Remote: rows}
	if !sess.Valid() {
		return syncer.ErrSignedOut
	}
	t.mu.Lock()
	t.session = sess
	t.mu.Unlock()
	return nil
}

// SignOut ends the session and forgets any saved session. Local data is kept.
func (t *Tracker) SignOut(ctx context.Context) error {
	t.mu.Lock()
	owner := t.session.OwnerID
	t.session = syncer.Session{}
	t.hasMerged = false
	t.pendingImport = false
	t.mu.Unlock()

	t.logger.Info("signed out", "owner", owner)
	return t.store.DeleteSetting(ctx, settingSession)
}

// SaveSession persists s for Resume in a later process.
func (t *Tracker) SaveSession(ctx context.Context, s SavedSession) error {
	return t.store.SetSetting(ctx, settingSession, s)
}

// SavedSession returns the persisted session, if any.
func (t *Tracker) SavedSession(ctx context.Context) (SavedSession, bool, error) {
	var s SavedSession
	ok, err := t.store.GetSetting(ctx, settingSession, &s)
	return s, ok, err
}

// SetOnline records connectivity. Going from offline to online while
// signed in runs a pending import, if any, and starts a push.
func (t *Tracker) SetOnline(ctx context.Context, online bool) {
	t.mu.Lock()
	cameOnline := online && !t.online
	t.online = online
	sess := t.session
	pending := t.pendingImport && cameOnline
	t.mu.Unlock()

	if !cameOnline || !sess.Valid() {
		return
	}
	t.logger.Debug("back online", "owner", sess.OwnerID)
	if pending {
		if _, err := t.importOnce(ctx, sess); err != nil {
			t.logger.Error("import after reconnect failed", "error", err)
		}
	}
	t.schedulePush()
}

// ImportFromCloud copies the account's remote rows into the local store.
// Calling it more than once duplicates rows locally.
func (t *Tracker) ImportFromCloud(ctx context.Context) (int, error) {
	sess, err := t.currentSession()
	if err != nil {
		return 0, err
	}
	n, err := t.engine.Import(ctx, sess)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := t.Refetch(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// SyncNow runs a push in the foreground and refreshes the snapshots.
func (t *Tracker) SyncNow(ctx context.Context) (syncer.PushResult, error) {
	sess, err := t.currentSession()
	if err != nil {
		return syncer.PushResult{}, err
	}
	return t.push(ctx, sess)
}

// MergeGuestDataToCloud uploads every unsynced local row as a new remote
// row of the signed-in account. It reports true only if every row was
// uploaded and left synced; otherwise the synced rows stay synced and the
// returned error is a *syncer.MergeError. Rows edited during the merge are
// pushed again in the background.
func (t *Tracker) MergeGuestDataToCloud(ctx context.Context) (bool, error) {
	sess, err := t.currentSession()
	if err != nil {
		return false, err
	}

	res, mergeErr := t.engine.Merge(ctx, sess)
	if res.Merged > 0 {
		t.recordSync(ctx)
	}
	if res.Stale > 0 {
		// Edits made during the merge had their push dropped by the guard.
		t.schedulePush()
	}
	if err := t.Refetch(ctx); err != nil && mergeErr == nil {
		mergeErr = err
	}
	if mergeErr != nil {
		return false, mergeErr
	}

	t.mu.Lock()
	t.hasMerged = true
	t.mu.Unlock()
	return true, nil
}

// ShouldPromptMerge reports whether the user should be offered a merge:
// signed in, unsynced rows present, not merged this session and not
// dismissed.
func (t *Tracker) ShouldPromptMerge(ctx context.Context) (bool, error) {
	if !t.IsSignedIn() || t.HasMerged() {
		return false, nil
	}
	var dismissed bool
	if _, err := t.store.GetSetting(ctx, settingMergeDismissed, &dismissed); err != nil {
		return false, err
	}
	if dismissed {
		return false, nil
	}
	n, err := t.store.CountUnsynced(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DismissMergePrompt stops ShouldPromptMerge from reporting true until the
// next sign-in.
func (t *Tracker) DismissMergePrompt(ctx context.Context) error {
	return t.store.SetSetting(ctx, settingMergeDismissed, true)
}

// LastSyncAt returns when a push or merge last marked rows synced.
func (t *Tracker) LastSyncAt(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	ok, err := t.store.GetSetting(ctx, settingLastSyncAt, &at)
	return at, ok, err
}

func (t *Tracker) currentSession() (syncer.Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.session.Valid() {
		return syncer.Session{}, syncer.ErrSignedOut
	}
	return t.session, nil
}

// importOnce runs the sign-in import. Remote failures are logged and
// swallowed; local store failures are returned.
func (t *Tracker) importOnce(ctx context.Context, sess syncer.Session) (int, error) {
	t.mu.Lock()
	t.pendingImport = false
	t.mu.Unlock()

	n, err := t.engine.Import(ctx, sess)
	if err != nil {
		if ledger.IsStorageError(err) {
			return 0, err
		}
		t.logger.Warn("import failed", "owner", sess.OwnerID, "error", err)
		return 0, nil
	}
	if n > 0 {
		if err := t.Refetch(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// schedulePush starts a background push if signed in and online.
func (t *Tracker) schedulePush() {
	t.mu.RLock()
	sess, online := t.session, t.online
	t.mu.RUnlock()
	if !sess.Valid() || !online {
		return
	}

	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		if _, err := t.push(t.bgCtx, sess); err != nil {
			t.logger.Warn("background push failed", "error", err)
		}
	}()
}

func (t *Tracker) push(ctx context.Context, sess syncer.Session) (syncer.PushResult, error) {
	res, err := t.engine.Push(ctx, sess)
	if err != nil {
		return res, err
	}
	if res.Synced > 0 {
		t.recordSync(ctx)
	}
	if res.Attempted > 0 {
		if err := t.Refetch(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (t *Tracker) recordSync(ctx context.Context) {
	if err := t.store.SetSetting(ctx, settingLastSyncAt, t.clock.Now()); err != nil {
		t.logger.Warn("record last sync failed", "error", err)
	}
}
