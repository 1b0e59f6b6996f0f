package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/resolution-cli/internal/ingest"
	"github.com/sells-group/resolution-cli/internal/match"
	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/store"
)

var (
	matchSources string
	matchJSON    bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Compare stored oracle outcomes with official market results",
	Long: "Loads official outcomes from a CSV, YAML, JSON or XLSX file and evaluates each market against its " +
		"stored run. Records naming a run_id use that run; otherwise the latest resolved run for the market is used.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		srcs, err := ingest.LoadSources(matchSources)
		if err != nil {
			return err
		}

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pairs, err := buildPairs(ctx, st, srcs)
		if err != nil {
			return err
		}
		results := match.EvaluateAll(pairs)
		counts := match.Count(results)

		if matchJSON {
			return writeJSON(os.Stdout, struct {
				Results []match.Result `json:"results"`
				Counts  match.Counts   `json:"counts"`
			}{results, counts})
		}
		formatMatchResults(os.Stdout, results, counts)
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchSources, "sources", "", "official outcomes file (csv, yaml, json, xlsx)")
	_ = matchCmd.MarkFlagRequired("sources")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(matchCmd)
}

// buildPairs pairs every official record with its oracle summary. A
// market with no resolved run pairs with nil and evaluates as pending.
func buildPairs(ctx context.Context, st store.Store, srcs []model.SourceInfo) ([]match.Pair, error) {
	pairs := make([]match.Pair, 0, len(srcs))
	for _, src := range srcs {
		sum, err := oracleFor(ctx, st, src)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, match.Pair{Source: src, Oracle: sum})
	}
	return pairs, nil
}

func oracleFor(ctx context.Context, st store.Store, src model.SourceInfo) (*model.RunSummary, error) {
	if src.RunID != "" {
		run, err := st.GetRun(ctx, src.RunID)
		if store.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "match: load run %s", src.RunID)
		}
		return run.Summary, nil
	}

	runs, err := st.ListRuns(ctx, store.RunFilter{
		Phase:    model.PhaseResolved,
		MarketID: src.MarketID,
		Limit:    1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "match: runs for market %s", src.MarketID)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0].Summary, nil
}

func formatMatchResults(out io.Writer, results []match.Result, c match.Counts) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MARKET\tOFFICIAL\tORACLE\tRUN\tSTATUS")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.MarketID, r.Official, r.Oracle, truncateID(r.RunID), r.Status)
	}
	_, _ = fmt.Fprintf(w, "\nMatch:\t%d\n", c.Match)
	_, _ = fmt.Fprintf(w, "Mismatch:\t%d\n", c.Mismatch)
	_, _ = fmt.Fprintf(w, "Pending:\t%d\n", c.Pending)
	_, _ = fmt.Fprintf(w, "Verification failed:\t%d\n", c.VerificationFailed)
	if c.Match+c.Mismatch > 0 {
		_, _ = fmt.Fprintf(w, "Accuracy:\t%.1f%%\n", c.Accuracy()*100)
	}
	_ = w.Flush()
}
