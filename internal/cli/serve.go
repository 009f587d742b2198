package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/cloud"
	"github.com/roach88/tally/internal/config"
	"github.com/roach88/tally/internal/remote"
)

// shutdownTimeout bounds how long serve waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a tally server that clients sign in to",
		Long: `Run the HTTP server that stores accounts and their transactions.

Rows and accounts are kept in Postgres when postgres_url (TALLY_POSTGRES_URL)
is set, and in memory otherwise. jwt_secret (TALLY_JWT_SECRET) is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd, opts, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: listen from config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, cfg config.Config) error {
	logger := opts.newLogger(cmd.ErrOrStderr())

	srv, closeRows, err := newCloudServer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRows()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitFailure, "serve", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	return nil
}

// newCloudServer builds the server over Postgres or in-memory storage.
// The returned func releases the storage.
func newCloudServer(cfg config.Config, logger *slog.Logger) (*cloud.Server, func(), error) {
	if cfg.JWTSecret == "" {
		return nil, nil, NewExitError(ExitCommandError, "jwt_secret is required (set TALLY_JWT_SECRET)")
	}

	var (
		rows     remote.Adapter
		accounts cloud.Accounts
		closeFn  = func() {}
	)
	if cfg.PostgresURL != "" {
		pg, err := remote.OpenPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "open postgres", err)
		}
		pgAccounts, err := cloud.NewPostgresAccounts(pg.DB())
		if err != nil {
			pg.Close()
			return nil, nil, WrapExitError(ExitCommandError, "prepare accounts", err)
		}
		rows, accounts = pg, pgAccounts
		closeFn = func() {
			if err := pg.Close(); err != nil {
				logger.Warn("close postgres", "error", err)
			}
		}
		logger.Info("using postgres storage")
	} else {
		rows, accounts = remote.NewMemory(), cloud.NewMemoryAccounts()
		logger.Warn("using in-memory storage; data is lost on exit")
	}

	srv, err := cloud.NewServer(rows, accounts, cfg.JWTSecret, cloud.WithLogger(logger))
	if err != nil {
		closeFn()
		return nil, nil, WrapExitError(ExitCommandError, "create server", err)
	}
	return srv, closeFn, nil
}
