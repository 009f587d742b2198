package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/tracker"
)

// credentialFlags holds the flags shared by register and login.
type credentialFlags struct {
	server   string
	username string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "server URL (default: remote_url from config)")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (default: $TALLY_PASSWORD)")
	cmd.MarkFlagRequired("username")
}

func (f *credentialFlags) passwordOrEnv() string {
	if f.password != "" {
		return f.password
	}
	return os.Getenv("TALLY_PASSWORD")
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	flags := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on a tally server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOnline(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				server, err := a.remoteURL(flags.server)
				if err != nil {
					return err
				}
				if err := remote.Register(cmd.Context(), nil, server, flags.username, flags.passwordOrEnv()); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(
					map[string]string{"username": flags.username, "server": server},
					fmt.Sprintf("Registered %s on %s. Run \"tally login\" to sign in.", flags.username, server),
				)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// LoginResult is the JSON output of login.
type LoginResult struct {
	OwnerID     string `json:"owner_id"`
	Imported    int    `json:"imported"`
	Unsynced    int    `json:"unsynced"`
	PromptMerge bool   `json:"prompt_merge"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	flags := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and copy the account's transactions locally",
		Long: `Sign in to a tally server. The account's transactions are copied into the
local database, and later changes are pushed automatically.

Transactions recorded before signing in are not uploaded until you run
"tally merge".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOnline(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				return runLogin(cmd, opts, a, flags)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runLogin(cmd *cobra.Command, opts *RootOptions, a *app, flags *credentialFlags) error {
	ctx := cmd.Context()
	server, err := a.remoteURL(flags.server)
	if err != nil {
		return err
	}

	creds, err := remote.Login(ctx, nil, server, flags.username, flags.passwordOrEnv())
	if err != nil {
		return err
	}
	saved := tracker.SavedSession{OwnerID: creds.OwnerID, Token: creds.Token, RemoteURL: server}
	if err := a.tracker.SaveSession(ctx, saved); err != nil {
		return err
	}

	imported, err := a.tracker.SignIn(ctx, creds.OwnerID, remote.NewClient(server, creds, nil))
	if err != nil {
		return err
	}
	unsynced, err := a.tracker.GetUnsyncedCount(ctx)
	if err != nil {
		return err
	}
	prompt, err := a.tracker.ShouldPromptMerge(ctx)
	if err != nil {
		return err
	}

	res := LoginResult{OwnerID: creds.OwnerID, Imported: imported, Unsynced: unsynced, PromptMerge: prompt}
	lines := []string{fmt.Sprintf("Signed in as %s; imported %d transactions.", flags.username, imported)}
	if prompt {
		lines = append(lines,
			fmt.Sprintf("%d local transactions are not in your account.", unsynced),
			`Run "tally merge" to upload them, or "tally merge --dismiss" to stop asking.`)
	}
	return opts.formatter(cmd).Success(res, lines...)
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; local transactions are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.tracker.SignOut(cmd.Context()); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]bool{"signed_in": false}, "Signed out.")
			})
		},
	}
}

// StatusResult is the JSON output of status.
type StatusResult struct {
	SignedIn    bool       `json:"signed_in"`
	OwnerID     string     `json:"owner_id,omitempty"`
	Server      string     `json:"server,omitempty"`
	Online      bool       `json:"online"`
	Unsynced    int        `json:"unsynced"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	PromptMerge bool       `json:"prompt_merge"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return runStatus(cmd, opts, a)
			})
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions, a *app) error {
	ctx := cmd.Context()
	t := a.tracker

	res := StatusResult{
		SignedIn: t.IsSignedIn(),
		OwnerID:  t.OwnerID(),
		Online:   t.IsOnline(),
	}
	if saved, ok, err := t.SavedSession(ctx); err != nil {
		return err
	} else if ok {
		res.Server = saved.RemoteURL
	}
	var err error
	if res.Unsynced, err = t.GetUnsyncedCount(ctx); err != nil {
		return err
	}
	if last, ok, err := t.LastSyncAt(ctx); err != nil {
		return err
	} else if ok {
		res.LastSyncAt = &last
	}
	if res.PromptMerge, err = t.ShouldPromptMerge(ctx); err != nil {
		return err
	}

	lines := []string{}
	if res.SignedIn {
		lines = append(lines, fmt.Sprintf("Signed in:  %s (%s)", res.OwnerID, res.Server))
	} else {
		lines = append(lines, "Signed in:  no")
	}
	lines = append(lines, fmt.Sprintf("Unsynced:   %d", res.Unsynced))
	if res.LastSyncAt != nil {
		lines = append(lines, fmt.Sprintf("Last sync:  %s", res.LastSyncAt.In(a.loc).Format(time.RFC3339)))
	}
	if res.PromptMerge {
		lines = append(lines, `Local transactions are not in your account; run "tally merge".`)
	}
	return opts.formatter(cmd).Success(res, lines...)
}
