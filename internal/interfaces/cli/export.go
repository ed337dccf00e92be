package cli

import (
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/xuri/excelize/v2"
)

// Workbook sheet names
const (
	runsSheet  = "Runs"
	statsSheet = "Stats"
)

var (
	runsHeader  = []any{"ID", "Entity Type", "Direction", "Status", "Started", "Finished", "Duration (ms)", "Expected", "Failure Rate", "Errors"}
	statsHeader = []any{"Run ID", "Kind", "Adds", "Updates", "Skips", "Conflicts", "Deletes", "Errors"}
)

// exportRuns writes runs to an xlsx workbook: one row per run on the Runs
// sheet and one row per run and entity kind on the Stats sheet.
func exportRuns(filename string, runs []*catalogsync.SyncRun) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		return err
	}

	if err := setRow(f, runsSheet, 1, runsHeader); err != nil {
		return err
	}
	if err := setRow(f, statsSheet, 1, statsHeader); err != nil {
		return err
	}

	statsRow := 2
	for i, run := range runs {
		row := []any{
			run.ID.String(), run.EntityType, string(run.Direction), string(run.Status),
			formatTime(run.StartedAt), formatTime(run.FinishedAt),
			run.Duration().Milliseconds(), run.TotalExpected, run.FailureRate, len(run.Errors),
		}
		if err := setRow(f, runsSheet, i+2, row); err != nil {
			return err
		}

		for _, kind := range run.Stats.Kinds() {
			c := run.Stats.Get(kind)
			stats := []any{run.ID.String(), string(kind), c.Adds, c.Updates, c.Skips, c.Conflicts, c.Deletes, c.Errors}
			if err := setRow(f, statsSheet, statsRow, stats); err != nil {
				return err
			}
			statsRow++
		}
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("save workbook %s: %w", filename, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
