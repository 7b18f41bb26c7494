package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/listing"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/resilience"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Fetch the per-year event listings into the basic dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("listings"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.CreateRun(ctx, model.RunKindListing)
		if err != nil {
			return eris.Wrap(err, "listings: create run")
		}
		log := zap.L().With(zap.String("component", "listings"), zap.String("run_id", run.ID))
		// Run-log writes must land even after a stop signal.
		logCtx := context.WithoutCancel(ctx)
		start := time.Now()

		lf := listing.New(newPageFetcher(cfg.Scrape), listing.Options{
			BaseURL: cfg.Scrape.BaseURL,
			Delay:   cfg.Listing.Delay(),
		})

		buckets, _ := cmd.Flags().GetStringSlice("buckets")
		if len(buckets) == 0 {
			buckets = cfg.Listing.Buckets
		}
		if len(buckets) == 0 {
			buckets, err = lf.Years(ctx)
			if err != nil {
				_ = st.FailRun(logCtx, run.ID, err)
				return err
			}
		}
		if limit, _ := cmd.Flags().GetInt("limit-buckets"); limit > 0 && limit < len(buckets) {
			buckets = buckets[:limit]
		}
		log.Info("walking listing buckets", zap.Int("buckets", len(buckets)))

		fresh, reports, walkErr := lf.Fetch(ctx, buckets)

		prior, err := dataset.Load[model.BasicRecord](cfg.Data.BasicPath)
		if err != nil {
			_ = st.FailRun(logCtx, run.ID, err)
			return err
		}
		out := listing.Refresh(prior, fresh, reports)
		if err := dataset.Save(out, cfg.Data.BasicPath); err != nil {
			_ = st.FailRun(logCtx, run.ID, err)
			return err
		}

		sum := &model.RunSummary{Records: out.Len(), Duration: time.Since(start)}
		for _, rep := range reports {
			sum.Skipped += rep.Skipped
			if rep.Err == nil {
				sum.Succeeded++
				continue
			}
			sum.Failed++
			item := model.FailedItem{
				Bucket:    rep.Bucket,
				Error:     rep.Err.Error(),
				ErrorType: resilience.ClassifyError(rep.Err),
				FailedAt:  time.Now().UTC(),
			}
			if err := st.RecordFailure(logCtx, run.ID, item); err != nil {
				log.Warn("record bucket failure", zap.String("bucket", rep.Bucket), zap.Error(err))
			}
		}

		status := model.RunStatusComplete
		if walkErr != nil {
			status = model.RunStatusCanceled
		}
		if err := st.CompleteRun(logCtx, run.ID, status, sum); err != nil {
			return eris.Wrap(err, "listings: complete run")
		}

		fmt.Fprintf(os.Stdout, "run %s: %d buckets ok, %d failed, %d records (%d rows skipped) -> %s\n",
			truncateID(run.ID), sum.Succeeded, sum.Failed, sum.Records, sum.Skipped, cfg.Data.BasicPath)
		return nil
	},
}

func init() {
	listingsCmd.Flags().StringSlice("buckets", nil, "year buckets to fetch (default: every year on the site)")
	listingsCmd.Flags().Int("limit-buckets", 0, "fetch at most this many buckets (0 = all)")
	rootCmd.AddCommand(listingsCmd)
}
