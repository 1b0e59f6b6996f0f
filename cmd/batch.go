package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/resolution-cli/internal/ingest"
	"github.com/sells-group/resolution-cli/internal/match"
	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/pipeline"
)

var (
	batchFlags       jobFlags
	batchLimit       int
	batchConcurrency int
	batchFailedOut   string
)

var batchCmd = &cobra.Command{
	Use:   "batch <questions-file>",
	Short: "Resolve many questions from a CSV, YAML, JSON or XLSX file",
	Long: "Runs one independent resolution per question with bounded concurrency. Questions that carry a " +
		"market_id and official_outcome are matched against the oracle result when the batch finishes.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := newRunContext(cmd.Context())
		defer stop()

		questions, err := ingest.LoadQuestions(args[0])
		if err != nil {
			return err
		}

		env, err := initResolve(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}
		template := batchFlags.apply(cmd, defaultJob())

		report, err := processBatch(ctx, questions, batchLimit, concurrency, func(ctx context.Context, q ingest.Question) (*model.RunSummary, error) {
			job := template
			job.Prompt.UserInput = q.UserInput
			sum, _, err := pipeline.Run(ctx, env.NewOrchestrator(), job)
			return sum, err
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Resolved %d of %d questions (%d failed)\n",
			report.Succeeded, report.Succeeded+report.Failed, report.Failed)
		if len(report.Results) > 0 {
			formatMatchResults(os.Stdout, report.Results, match.Count(report.Results))
		}
		if batchFailedOut != "" && len(report.Failures) > 0 {
			if err := writeFailures(batchFailedOut, report.Failures); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d failed questions to %s\n", len(report.Failures), batchFailedOut)
		}
		return nil
	},
}

func init() {
	batchFlags.register(batchCmd, true)
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of questions to process (0 for all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel runs (default from config)")
	batchCmd.Flags().StringVar(&batchFailedOut, "failed-out", "", "write failed questions to this YAML file for a later re-run")
	rootCmd.AddCommand(batchCmd)
}

// resolveFunc runs one question to completion.
type resolveFunc func(ctx context.Context, q ingest.Question) (*model.RunSummary, error)

// batchReport tallies a batch. Results holds one entry per question that
// carried a market id, in input order.
type batchReport struct {
	Succeeded int
	Failed    int
	Results   []match.Result
	Failures  []failedQuestion
}

// failedQuestion is a question that did not resolve. A failures file is
// itself a valid questions file.
type failedQuestion struct {
	ingest.Question `yaml:",inline"`
	Error           string `yaml:"error"`
	FailedAt        string `yaml:"failed_at"`
}

func writeFailures(path string, failures []failedQuestion) error {
	data, err := yaml.Marshal(failures)
	if err != nil {
		return eris.Wrap(err, "batch: marshal failures")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "batch: write failures")
}

// processBatch applies limit, then resolves questions concurrently. A
// failed question never aborts the batch.
func processBatch(ctx context.Context, questions []ingest.Question, limit, concurrency int, resolve resolveFunc) (batchReport, error) {
	if len(questions) == 0 {
		zap.L().Info("no questions found")
		return batchReport{}, nil
	}

	if limit > 0 && len(questions) > limit {
		questions = questions[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("questions", len(questions)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	var mu sync.Mutex
	summaries := make([]*model.RunSummary, len(questions))
	errs := make([]error, len(questions))
	failedAt := make([]time.Time, len(questions))

	for i, q := range questions {
		g.Go(func() error {
			log := zap.L().With(zap.Int("index", i), zap.String("market_id", q.MarketID))

			sum, err := resolve(gctx, q)
			if err != nil {
				failed.Add(1)
				mu.Lock()
				errs[i] = err
				failedAt[i] = time.Now().UTC()
				mu.Unlock()
				log.Error("resolution failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			mu.Lock()
			summaries[i] = sum
			mu.Unlock()
			log.Info("resolution complete",
				zap.String("run_id", sum.RunID),
				zap.String("outcome", string(sum.Outcome)),
				zap.Float64("confidence", sum.Confidence),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchReport{}, eris.Wrap(err, "batch processing")
	}

	report := batchReport{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}

	var pairs []match.Pair
	for i, q := range questions {
		if src := q.Source(); src != nil {
			pairs = append(pairs, match.Pair{Source: *src, Oracle: summaries[i]})
		}
		if errs[i] != nil {
			report.Failures = append(report.Failures, failedQuestion{
				Question: q,
				Error:    errs[i].Error(),
				FailedAt: failedAt[i].Format(time.RFC3339),
			})
		}
	}
	if len(pairs) > 0 {
		report.Results = match.EvaluateAll(pairs)
	}

	zap.L().Info("batch complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
