package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/pipeline"
)

// jobFlags are the per-run overrides shared by prompt, resolve and batch.
type jobFlags struct {
	strict     bool
	provider   string
	model      string
	collectors []string
	mode       string
	singleCall bool
}

func (f *jobFlags) register(cmd *cobra.Command, resolve bool) {
	cmd.Flags().BoolVar(&f.strict, "strict", false, "strict prompt compilation (overrides pipeline.strict_mode when set)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&f.model, "model", "", "LLM model (default from config)")
	if !resolve {
		return
	}
	cmd.Flags().StringSliceVar(&f.collectors, "collector", nil, "evidence collector id (repeatable)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "execution mode: live, replay, dry_run")
	cmd.Flags().BoolVar(&f.singleCall, "single-call", false, "run collect through bundle as one gateway call (overrides pipeline.single_call when set)")
}

// apply merges the flags the user set over job.
func (f *jobFlags) apply(cmd *cobra.Command, job pipeline.Job) pipeline.Job {
	if cmd.Flags().Changed("strict") {
		job.Prompt.StrictMode = f.strict
	}
	if f.provider != "" {
		job.Prompt.Provider = f.provider
		job.Resolve.Provider = f.provider
	}
	if f.model != "" {
		job.Prompt.Model = f.model
		job.Resolve.Model = f.model
	}
	if len(f.collectors) > 0 {
		job.Resolve.Collectors = f.collectors
	}
	if f.mode != "" {
		job.Resolve.Mode = f.mode
	}
	if cmd.Flags().Changed("single-call") {
		job.SingleCall = f.singleCall
	}
	return job
}

var (
	resolveFlags jobFlags
	resolveJSON  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <question>",
	Short: "Resolve a market question end to end",
	Long:  "Compiles the question into a prompt spec, then runs collect, audit, judge and bundle and prints the run summary.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := newRunContext(cmd.Context())
		defer stop()

		env, err := initResolve(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		job := resolveFlags.apply(cmd, defaultJob())
		job.Prompt.UserInput = strings.Join(args, " ")

		o := env.NewOrchestrator()
		done := watchProgress(o)
		sum, st, err := pipeline.Run(ctx, o, job)
		done()
		if err != nil {
			formatStages(os.Stderr, st)
			return err
		}

		if resolveJSON {
			return writeJSON(os.Stdout, sum)
		}
		formatSummary(os.Stdout, sum)
		return nil
	},
}

func init() {
	resolveFlags.register(resolveCmd, true)
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the full summary as JSON")
	rootCmd.AddCommand(resolveCmd)
}

// watchProgress logs stage transitions until the returned func is called.
func watchProgress(o *pipeline.Orchestrator) func() {
	ch, unsubscribe := o.Subscribe()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		last := make(map[model.Stage]model.StageStatus)
		for st := range ch {
			for _, s := range st.Stages {
				if last[s.Stage] == s.Status {
					continue
				}
				last[s.Stage] = s.Status
				if s.Status == model.StageStatusPending {
					continue
				}
				zap.L().Info("stage",
					zap.String("run_id", st.RunID),
					zap.String("stage", string(s.Stage)),
					zap.String("status", string(s.Status)),
					zap.Int64("duration_ms", s.DurationMS),
				)
			}
		}
	}()
	return func() {
		unsubscribe()
		<-finished
	}
}

// formatSummary writes a compact human-readable summary to w.
func formatSummary(out io.Writer, s *model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", s.RunID)
	_, _ = fmt.Fprintf(w, "Market:\t%s\n", s.MarketID)
	_, _ = fmt.Fprintf(w, "Outcome:\t%s\n", s.Outcome)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.2f\n", s.Confidence)
	_, _ = fmt.Fprintf(w, "Mode:\t%s\n", s.ExecutionMode)
	_, _ = fmt.Fprintf(w, "Verified:\t%t\n", s.VerificationOK)
	_, _ = fmt.Fprintf(w, "PoR root:\t%s\n", s.PoRRoot)
	_, _ = fmt.Fprintf(w, "Evidence:\t%d items\n", len(s.EvidenceItems))
	_, _ = fmt.Fprintf(w, "Duration:\t%dms\n", s.DurationMS)
	for _, c := range s.Checks {
		if !c.OK {
			_, _ = fmt.Fprintf(w, "Check failed:\t%s %s\n", c.Name, c.Detail)
		}
	}
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", e)
	}
	_ = w.Flush()
}

// formatStages writes the per-stage status of a run to w.
func formatStages(out io.Writer, st pipeline.State) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSTATUS\tDURATION\tERRORS")
	for _, s := range st.Stages {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", s.Stage, s.Status, s.DurationMS, strings.Join(s.Errors, "; "))
	}
	_ = w.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newRunContext bounds a command to SIGINT/SIGTERM.
func newRunContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
