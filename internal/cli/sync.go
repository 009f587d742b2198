package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced changes to the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOnline(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				res, err := a.tracker.SyncNow(cmd.Context())
				if err != nil {
					return err
				}
				text := fmt.Sprintf("Pushed %d of %d changes.", res.Synced, res.Attempted)
				if res.Failed > 0 {
					text += fmt.Sprintf(" %d failed and will be retried.", res.Failed)
				}
				return opts.formatter(cmd).Success(res, text)
			})
		},
	}
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(opts *RootOptions) *cobra.Command {
	var dismiss bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Upload transactions recorded before signing in",
		Long: `Upload every unsynced local transaction to the signed-in account as a new
row. Rows that fail stay unsynced and are retried by the next sync.

With --dismiss nothing is uploaded and login stops suggesting a merge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dismiss {
				if err := requireOnline(opts); err != nil {
					return err
				}
			}
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				if dismiss {
					if err := a.tracker.DismissMergePrompt(ctx); err != nil {
						return err
					}
					return opts.formatter(cmd).Success(map[string]bool{"dismissed": true}, "Merge prompt dismissed.")
				}
				if _, err := a.tracker.MergeGuestDataToCloud(ctx); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]bool{"merged": true}, "Local transactions uploaded.")
			})
		},
	}
	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "stop suggesting a merge")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the account's transactions into the local database again",
		Long: `Copy every transaction of the signed-in account into the local database.

Rows are not matched against existing local rows, so running this after
login duplicates them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOnline(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.tracker.ImportFromCloud(cmd.Context())
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]int{"imported": n}, fmt.Sprintf("Imported %d transactions.", n))
			})
		},
	}
}
