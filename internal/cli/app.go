package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/attach"
	"github.com/roach88/tally/internal/config"
	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/tracker"
)

// app is the tracker plus everything it was built from, for one command.
type app struct {
	cfg     config.Config
	loc     *time.Location
	store   *store.Store
	tracker *tracker.Tracker
	dir     *attach.Dir
	gcs     *attach.GCS
	logger  *slog.Logger
}

// openApp opens the local store and builds a loaded tracker. A session
// saved by an earlier login is resumed unless --offline is set, in which
// case the tracker starts offline.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	ctx := cmd.Context()
	logger := opts.newLogger(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, &config.Error{Err: err}
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	a := &app{cfg: cfg, loc: loc, store: st, logger: logger}

	var enc attach.Encoder
	if cfg.GCSBucket != "" {
		a.gcs, err = attach.NewGCS(ctx, cfg.GCSBucket, "attachments")
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "open attachment bucket", err)
		}
		enc = a.gcs
	} else {
		a.dir, err = attach.NewDir(attachmentsDir(cfg))
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "open attachment dir", err)
		}
		enc = a.dir
	}

	a.tracker = tracker.New(st,
		tracker.WithLocation(loc),
		tracker.WithEncoder(enc),
		tracker.WithLogger(logger),
	)
	if opts.Offline {
		a.tracker.SetOnline(ctx, false)
	}
	if err := a.tracker.Load(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.resume(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// attachmentsDir resolves a relative attachments directory against the
// directory of the database file.
func attachmentsDir(cfg config.Config) string {
	if filepath.IsAbs(cfg.AttachmentsDir) {
		return cfg.AttachmentsDir
	}
	return filepath.Join(filepath.Dir(cfg.Database), cfg.AttachmentsDir)
}

func (a *app) resume(ctx context.Context) error {
	saved, ok, err := a.tracker.SavedSession(ctx)
	if err != nil || !ok {
		return err
	}
	client := remote.NewClient(saved.RemoteURL, remote.Credentials{
		OwnerID: saved.OwnerID,
		Token:   saved.Token,
	}, nil)
	a.logger.Debug("resuming session", "owner", saved.OwnerID, "server", saved.RemoteURL)
	return a.tracker.Resume(saved.OwnerID, client)
}

// remoteURL returns the server URL from the flag, or the configured one.
func (a *app) remoteURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.RemoteURL != "" {
		return a.cfg.RemoteURL, nil
	}
	return "", NewExitError(ExitCommandError, "no server: pass --server or set remote_url / TALLY_REMOTE_URL")
}

// close waits for pushes started by the command, then releases everything.
func (a *app) close() {
	if a.tracker != nil {
		a.tracker.Wait()
		a.tracker.Close()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("close attachment bucket", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

// withApp opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(a *app) error) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// requireOnline rejects commands that need the server under --offline.
func requireOnline(opts *RootOptions) error {
	if opts.Offline {
		return NewExitError(ExitCommandError, "this command needs the server; drop --offline")
	}
	return nil
}

var errNoSuchTransaction = errors.New("no such transaction")

func noSuchTransaction(id string) error {
	return WrapExitError(ExitFailure, fmt.Sprintf("transaction %s", id), errNoSuchTransaction)
}
