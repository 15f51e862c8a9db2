package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forcemeta/sfmeta/internal/config"
	"github.com/forcemeta/sfmeta/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past retrievals",
		Long: `List retrievals recorded in the local history database, newest first.

Example:
  sfmeta history
  sfmeta history --limit 5 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing history database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	retrievals, err := store.List(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list history", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if done, err := formatter.JSON(retrievals); done {
		return err
	}

	out := cmd.OutOrStdout()
	if len(retrievals) == 0 {
		fmt.Fprintln(out, "No retrievals recorded.")
		return nil
	}
	for _, r := range retrievals {
		fmt.Fprintf(out, "%s  %s  %-30s  %d members  %s\n",
			r.CreatedAt.Local().Format(time.DateTime),
			shortID(r.ID),
			strings.Join(r.Profiles, ","),
			r.MemberCount,
			r.OutputDir,
		)
	}
	return nil
}

// shortID abbreviates a run UUID for the text listing.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
