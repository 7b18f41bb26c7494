package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/enrich"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/scrape"
)

// progressEvery is how often the enrich command logs progress.
const progressEvery = 100

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch detail pages for listed shows that are not yet enriched",
	Long: "Reads the basic dataset, fetches the detail page of every show missing from the " +
		"detailed dataset and merges the results. Interrupting with Ctrl-C stops new fetches, " +
		"lets in-flight ones finish and saves progress; re-running resumes where it stopped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := applyEnrichFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		opts, err := enrichOptions(cmd)
		if err != nil {
			return err
		}

		basic, err := dataset.Load[model.BasicRecord](cfg.Data.BasicPath)
		if err != nil {
			return err
		}
		if basic.Len() == 0 {
			return eris.Errorf("enrich: %s has no records, run listings first", cfg.Data.BasicPath)
		}
		prior, err := dataset.Load[model.DetailRecord](cfg.Data.DetailedPath)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.CreateRun(ctx, model.RunKindEnrich)
		if err != nil {
			return eris.Wrap(err, "enrich: create run")
		}
		log := zap.L().With(zap.String("component", "enrich"), zap.String("run_id", run.ID))
		logCtx := context.WithoutCancel(ctx)

		var done int
		opts.OnResult = func(ev enrich.Event) {
			done++
			if done%progressEvery == 0 {
				log.Info("progress", zap.Int("processed", done), zap.String("last", ev.ShowID))
			}
		}

		p, err := enrich.New(newPageFetcher(cfg.Scrape), scrape.DetailParser{}, enrich.SaveTo(cfg.Data.DetailedPath), opts)
		if err != nil {
			return err
		}

		_, sum, runErr := p.Run(ctx, basic, prior)

		if err := st.RecordFailures(logCtx, run.ID, sum.Failed); err != nil {
			log.Warn("record failures", zap.Int("count", len(sum.Failed)), zap.Error(err))
		}

		if runErr != nil && !sum.Aborted {
			if err := st.FailRun(logCtx, run.ID, runErr); err != nil {
				log.Warn("fail run", zap.Error(err))
			}
			return runErr
		}
		if err := st.CompleteRun(logCtx, run.ID, sum.Status(), sum.RunSummary()); err != nil {
			return eris.Wrap(err, "enrich: complete run")
		}

		formatEnrichSummary(os.Stdout, run.ID, sum)
		return runErr
	},
}

// applyEnrichFlags overrides the loaded config with explicitly set flags.
// Durations must be whole units of the config field they land in.
func applyEnrichFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("concurrency") {
		cfg.Scrape.MaxConcurrent, _ = f.GetInt("concurrency")
	}
	if f.Changed("delay") {
		d, _ := f.GetDuration("delay")
		if d%time.Millisecond != 0 {
			return eris.Errorf("enrich: --delay must be a whole number of milliseconds, got %s", d)
		}
		cfg.Scrape.DelayMS = int(d.Milliseconds())
	}
	if f.Changed("timeout") {
		d, _ := f.GetDuration("timeout")
		if d%time.Second != 0 {
			return eris.Errorf("enrich: --timeout must be a whole number of seconds, got %s", d)
		}
		cfg.Scrape.TimeoutSecs = int(d.Seconds())
	}
	if f.Changed("failure-threshold") {
		cfg.Scrape.FailureThreshold, _ = f.GetInt("failure-threshold")
	}
	return nil
}

func enrichOptions(cmd *cobra.Command) (enrich.Options, error) {
	opts := enrich.DefaultOptions()
	opts.MaxConcurrent = cfg.Scrape.MaxConcurrent
	opts.Delay = cfg.Scrape.Delay()
	opts.RequestTimeout = cfg.Scrape.Timeout()
	opts.FailureThreshold = cfg.Scrape.FailureThreshold
	opts.CheckpointEvery = cfg.Scrape.CheckpointEvery
	opts.Force, _ = cmd.Flags().GetBool("force")
	opts.OnlyIDs, _ = cmd.Flags().GetStringSlice("ids")
	return opts, opts.Validate()
}

func formatEnrichSummary(out io.Writer, runID string, sum enrich.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(runID))
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", sum.Status())
	_, _ = fmt.Fprintf(w, "Listed shows:\t%d\n", sum.Total)
	_, _ = fmt.Fprintf(w, "To fetch:\t%d\n", sum.WorkSet)
	_, _ = fmt.Fprintf(w, "Enriched:\t%d\n", sum.Succeeded)
	_, _ = fmt.Fprintf(w, "Partial:\t%d\n", sum.Partial)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", len(sum.Failed))
	_, _ = fmt.Fprintf(w, "Already enriched:\t%d\n", sum.Skipped)
	_, _ = fmt.Fprintf(w, "No detail page:\t%d\n", sum.NoURL)
	if sum.Orphaned > 0 {
		_, _ = fmt.Fprintf(w, "Dropped orphans:\t%d\n", sum.Orphaned)
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", sum.Duration.Round(time.Millisecond))
	_ = w.Flush()
	if len(sum.Failed) > 0 {
		_, _ = fmt.Fprintf(out, "\nFailed shows are retried on the next run. List them with: runs failures %s\n", runID)
	}
}

func init() {
	f := enrichCmd.Flags()
	f.Int("concurrency", enrich.DefaultMaxConcurrent, "maximum detail fetches in flight")
	f.Duration("delay", enrich.DefaultDelay, "minimum spacing between fetch starts on one worker")
	f.Duration("timeout", enrich.DefaultRequestTimeout, "per-request timeout")
	f.Int("failure-threshold", enrich.DefaultFailureThreshold, "abort after this many consecutive failures (0 = never)")
	f.Bool("force", false, "re-fetch shows that are already enriched")
	f.StringSlice("ids", nil, "only enrich these show ids")
	rootCmd.AddCommand(enrichCmd)
}
