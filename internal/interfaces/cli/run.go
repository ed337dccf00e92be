package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	appsync "github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/spf13/cobra"
)

// RunOptions holds the flags of the run command
type RunOptions struct {
	Item int64
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation and print its statistics",
		Long: `Run one reconciliation of the remote catalog under the run lock.

With --item only that remote product is fetched and reconciled; nothing is
removed.

The command exits 1 when the run finishes FAILED and 2 when it cannot start,
including when another run holds the lock.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.Item, "item", 0, "reconcile only the remote product with this id")

	return cmd
}

func runOnce(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions) error {
	if cmd.Flags().Changed("item") && opts.Item <= 0 {
		return NewExitError(ExitCommandError, "--item must be a positive remote product id")
	}

	ctx := cmd.Context()
	app, err := rootOpts.bootstrap(ctx, AppOptions{Remote: true})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	var result appsync.SyncResult
	if opts.Item > 0 {
		result, err = app.Runner.RunItem(ctx, appsync.TriggerManual, opts.Item)
	} else {
		result, err = app.Runner.Run(ctx, appsync.TriggerManual)
	}
	if errors.Is(err, catalogsync.ErrSyncInProgress) {
		return WrapExitError(ExitCommandError, "another sync run is in progress", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "sync run could not start", err)
	}

	if rootOpts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), result)
	}

	if result.Status == catalogsync.SyncStatusFailed {
		return NewExitError(ExitFailure, fmt.Sprintf("sync run %s failed", result.RunID))
	}
	return nil
}

func printResult(out io.Writer, result appsync.SyncResult) {
	fmt.Fprintf(out, "run:          %s\n", result.RunID)
	fmt.Fprintf(out, "status:       %s\n", result.Status)
	fmt.Fprintf(out, "failure rate: %.2f%%\n\n", result.FailureRate*100)

	printStats(out, result.Stats)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nerrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
}

func printStats(out io.Writer, stats catalogsync.Stats) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tADDS\tUPDATES\tSKIPS\tCONFLICTS\tDELETES\tERRORS")
	for _, kind := range stats.Kinds() {
		c := stats.Get(kind)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", kind, c.Adds, c.Updates, c.Skips, c.Conflicts, c.Deletes, c.Errors)
	}
	_ = tw.Flush()
}
