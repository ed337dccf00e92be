package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	appsync "github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/spf13/cobra"
)

// HistoryOptions holds flags for the history command
type HistoryOptions struct {
	*RootOptions
	EntityType string
	Direction  string
	Status     string
	Limit      int
	Export     string
}

// NewHistoryCommand creates the history command
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs, newest first",
		Example: `  catalogsync history --limit 5
  catalogsync history --status FAILED --format json
  catalogsync history --limit 100 --export runs.xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "filter by entity type (e.g. product)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "filter by direction (PULL)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (PENDING|RUNNING|SUCCESS|PARTIAL|FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write the runs to an xlsx workbook instead of stdout")

	return cmd
}

func listHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	ctx := cmd.Context()
	app, err := opts.bootstrap(ctx, AppOptions{})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	runs, err := app.Engine.GetSyncHistory(ctx, appsync.HistoryQuery{
		EntityType: opts.EntityType,
		Direction:  opts.Direction,
		Status:     opts.Status,
		Limit:      opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sync history", err)
	}

	if opts.Export != "" {
		if err := exportRuns(opts.Export, runs); err != nil {
			return WrapExitError(ExitFailure, "failed to export sync history", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d runs to %s\n", len(runs), opts.Export)
		return nil
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), dto.NewSyncRunListResponse(runs))
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(out io.Writer, runs []*catalogsync.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "no sync runs recorded")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tSTATUS\tADDS\tUPDATES\tSKIPS\tCONFLICTS\tDELETES\tERRORS")
	for _, run := range runs {
		started := "-"
		if run.StartedAt != nil {
			started = run.StartedAt.Format(time.RFC3339)
		}
		p := run.Stats.Product()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			run.ID, started, run.Duration().Round(time.Millisecond), run.Status,
			p.Adds, p.Updates, p.Skips, p.Conflicts, p.Deletes, run.Stats.TotalErrors())
	}
	_ = tw.Flush()
}
