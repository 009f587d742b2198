package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/attach"
	"github.com/roach88/tally/internal/ledger"
)

// TransactionView is the JSON form of a transaction.
type TransactionView struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"`
	PersonName string          `json:"person_name"`
	Amount     decimal.Decimal `json:"amount"`
	Type       ledger.Type     `json:"type"`
	Notes      string          `json:"notes,omitempty"`
	Attachment *AttachmentView `json:"attachment,omitempty"`
	CloudID    string          `json:"cloud_id,omitempty"`
	Synced     bool            `json:"synced"`
	DeletedAt  string          `json:"deleted_at,omitempty"`
}

// AttachmentView is the JSON form of an attachment reference.
type AttachmentView struct {
	Name     string `json:"name"`
	Locator  string `json:"locator"`
	MimeType string `json:"mime_type"`
}

func viewOf(t ledger.Transaction, loc *time.Location) TransactionView {
	v := TransactionView{
		ID:         t.ID,
		Date:       t.Date.In(loc).Format(time.DateOnly),
		PersonName: t.PersonName,
		Amount:     t.Amount,
		Type:       t.Type,
		Notes:      t.Notes,
		CloudID:    t.CloudID.OrZero(),
		Synced:     t.Synced,
	}
	if a, ok := t.Attachment.Get(); ok {
		v.Attachment = &AttachmentView{Name: a.Name, Locator: a.Locator, MimeType: a.MimeType}
	}
	if d, ok := t.DeletedAt.Get(); ok {
		v.DeletedAt = d.In(loc).Format(time.RFC3339)
	}
	return v
}

func viewsOf(ts []ledger.Transaction, loc *time.Location) []TransactionView {
	out := make([]TransactionView, 0, len(ts))
	for _, t := range ts {
		out = append(out, viewOf(t, loc))
	}
	return out
}

// writeTable renders transactions as aligned text columns.
func writeTable(w io.Writer, views []TransactionView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tNAME\tSYNCED")
	for _, v := range views {
		sign := "+"
		if v.Type == ledger.Sent {
			sign = "-"
		}
		synced := "no"
		if v.Synced {
			synced = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s\t%s\t%s\n",
			v.ID, v.Date, v.Type, sign, v.Amount.StringFixed(2), v.PersonName, synced)
	}
	tw.Flush()
}

// txFlags holds the transaction field flags shared by add and edit.
type txFlags struct {
	name   string
	amount string
	typ    string
	date   string
	notes  string
	attach string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "person or party")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "positive amount, e.g. 12.50")
	cmd.Flags().StringVarP(&f.typ, "type", "t", "", "received or sent")
	cmd.Flags().StringVarP(&f.date, "date", "d", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&f.attach, "attach", "", "file to attach (image, PDF or Word document)")
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, &ledger.ValidationError{Field: "amount", Message: "amount must be a number"}
	}
	return d, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: "date", Message: "date must be YYYY-MM-DD"}
	}
	return d, nil
}

func today(loc *time.Location) time.Time {
	y, m, d := time.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func readUpload(path string) (*ledger.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read attachment", err)
	}
	return &ledger.Upload{Name: filepath.Base(path), Data: data}, nil
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	flags := &txFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Long: `Record money received from or sent to someone.

Examples:
  tally add -n Alice -a 100 -t received
  tally add -n Landlord -a 850 -t sent -d 2024-03-01 --notes "March rent"
  tally add -n Shop -a 12.99 -t sent --attach receipt.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return runAdd(cmd, opts, a, flags)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runAdd(cmd *cobra.Command, opts *RootOptions, a *app, flags *txFlags) error {
	form := ledger.FormData{
		Date:       today(a.loc),
		PersonName: flags.name,
		Type:       ledger.Type(flags.typ),
		Notes:      flags.notes,
	}
	if flags.amount != "" {
		amount, err := parseAmount(flags.amount)
		if err != nil {
			return err
		}
		form.Amount = amount
	}
	if flags.date != "" {
		d, err := parseDate(flags.date, a.loc)
		if err != nil {
			return err
		}
		form.Date = d
	}
	if flags.attach != "" {
		u, err := readUpload(flags.attach)
		if err != nil {
			return err
		}
		form.Attachment = u
	}

	tx, err := a.tracker.AddTransaction(cmd.Context(), form)
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Success(viewOf(tx, a.loc), fmt.Sprintf("Added %s", tx.ID))
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active transactions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				views := viewsOf(a.tracker.Transactions(), a.loc)
				if opts.Format == "json" {
					return opts.formatter(cmd).Success(views)
				}
				writeTable(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
}

// NewTrashCommand creates the trash command.
func NewTrashCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trash",
		Short: "List deleted transactions, most recently deleted first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				views := viewsOf(a.tracker.TrashedTransactions(), a.loc)
				if opts.Format == "json" {
					return opts.formatter(cmd).Success(views)
				}
				writeTable(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
}

// NewEditCommand creates the edit command.
func NewEditCommand(opts *RootOptions) *cobra.Command {
	flags := &txFlags{}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a transaction",
		Long: `Change fields of an active transaction. Only the flags given are changed.

Examples:
  tally edit 3f2a... -a 120
  tally edit 3f2a... --notes "paid back"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return runEdit(cmd, opts, a, flags, args[0])
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runEdit(cmd *cobra.Command, opts *RootOptions, a *app, flags *txFlags, id string) error {
	ctx := cmd.Context()
	changed := cmd.Flags().Changed

	var p ledger.Patch
	if changed("name") {
		p.PersonName = ledger.Some(flags.name)
	}
	if changed("amount") {
		amount, err := parseAmount(flags.amount)
		if err != nil {
			return err
		}
		p.Amount = ledger.Some(amount)
	}
	if changed("type") {
		p.Type = ledger.Some(ledger.Type(flags.typ))
	}
	if changed("date") {
		d, err := parseDate(flags.date, a.loc)
		if err != nil {
			return err
		}
		p.Date = ledger.Some(d)
	}
	if changed("notes") {
		p.Notes = ledger.Some(flags.notes)
	}
	if changed("attach") {
		u, err := readUpload(flags.attach)
		if err != nil {
			return err
		}
		p.Attachment = u
	}

	if _, ok, err := a.store.Get(ctx, id); err != nil {
		return err
	} else if !ok {
		return noSuchTransaction(id)
	}
	if err := a.tracker.UpdateTransaction(ctx, id, p); err != nil {
		return err
	}

	tx, _, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Success(viewOf(tx, a.loc), fmt.Sprintf("Updated %s", id))
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Move a transaction to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				id := args[0]
				if _, ok, err := a.store.Get(ctx, id); err != nil {
					return err
				} else if !ok {
					return noSuchTransaction(id)
				}
				if err := a.tracker.SoftDeleteTransaction(ctx, id); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"id": id}, fmt.Sprintf("Moved %s to the trash", id))
			})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals, balance and today's figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				s := a.tracker.GetStats()
				return opts.formatter(cmd).Success(s,
					fmt.Sprintf("Income:        %s", s.TotalIncome.StringFixed(2)),
					fmt.Sprintf("Expenses:      %s", s.TotalExpense.StringFixed(2)),
					fmt.Sprintf("Balance:       %s", s.Balance.StringFixed(2)),
					fmt.Sprintf("Today in:      %s", s.DailyIncome.StringFixed(2)),
					fmt.Sprintf("Today out:     %s", s.DailyExpense.StringFixed(2)),
					fmt.Sprintf("Transactions:  %d", s.TransactionCount),
					fmt.Sprintf("In trash:      %d", s.TrashedCount),
				)
			})
		},
	}
}

// NewAttachmentCommand creates the attachment command.
func NewAttachmentCommand(opts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "attachment <id>",
		Short: "Export the file attached to a transaction",
		Long: `Export the file attached to a transaction.

Locally stored files are copied to --output (or stdout). For files kept in
a bucket the URL is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return runAttachment(cmd, opts, a, args[0], out)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the file here instead of stdout")
	return cmd
}

func runAttachment(cmd *cobra.Command, opts *RootOptions, a *app, id, out string) error {
	tx, ok, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return noSuchTransaction(id)
	}
	att, ok := tx.Attachment.Get()
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("transaction %s has no attachment", id))
	}

	if !strings.HasPrefix(att.Locator, attach.LocalScheme) || a.dir == nil {
		return opts.formatter(cmd).Success(AttachmentView{Name: att.Name, Locator: att.Locator, MimeType: att.MimeType}, att.Locator)
	}

	r, err := a.dir.Open(att.Locator)
	if err != nil {
		return WrapExitError(ExitFailure, "open attachment", err)
	}
	defer r.Close()

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return WrapExitError(ExitCommandError, "create output", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.Copy(w, r); err != nil {
		return WrapExitError(ExitFailure, "copy attachment", err)
	}
	return nil
}
