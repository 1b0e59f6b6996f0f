package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/resolution-cli/internal/export"
	"github.com/sells-group/resolution-cli/internal/ingest"
	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect resolution run history",
	Long:  "Commands for listing, viewing, and exporting resolution runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resolution runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		phase, _ := cmd.Flags().GetString("phase")
		market, _ := cmd.Flags().GetString("market")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Phase:    model.Phase(phase),
			MarketID: market,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		return writeJSON(os.Stdout, run)
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs and their evidence to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		sourcesPath, _ := cmd.Flags().GetString("sources")
		phase, _ := cmd.Flags().GetString("phase")
		limit, _ := cmd.Flags().GetInt("limit")

		var sources map[string]model.SourceInfo
		if sourcesPath != "" {
			srcs, err := ingest.LoadSources(sourcesPath)
			if err != nil {
				return err
			}
			sources = export.SourceIndex(srcs)
		}

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RunFilter{Phase: model.Phase(phase), Limit: limit}
		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "runs export: create file")
		}
		if err := export.WriteRuns(f, runs, sources); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "runs export: close file")
		}

		fmt.Fprintf(os.Stderr, "Exported %d runs to %s\n", len(runs), out)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("phase", "", "filter by phase (input, prompted, resolving, resolved, ...)")
	runsListCmd.Flags().String("market", "", "filter by market id")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsExportCmd.Flags().String("out", "runs.xlsx", "output workbook path")
	runsExportCmd.Flags().String("sources", "", "official outcomes file (csv, yaml, json, xlsx) for match status")
	runsExportCmd.Flags().String("phase", string(model.PhaseResolved), "filter by phase (empty for all)")
	runsExportCmd.Flags().Int("limit", 1000, "max number of runs to export")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMARKET\tPHASE\tOUTCOME\tCONFIDENCE\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t-------\t----------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		outcome, confidence := "", ""
		if r.Summary != nil {
			outcome = string(r.Summary.Outcome)
			confidence = fmt.Sprintf("%.2f", r.Summary.Confidence)
			if r.Summary.DurationMS > 0 {
				dur = (time.Duration(r.Summary.DurationMS) * time.Millisecond).Round(time.Millisecond).String()
			}
		}

		market := r.MarketID
		if len(market) > 30 {
			market = market[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			market,
			r.Phase,
			outcome,
			confidence,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
