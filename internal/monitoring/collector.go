// Package monitoring summarizes run history and dataset coverage.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/store"
)

// maxRuns caps how many runs a snapshot inspects.
const maxRuns = 10000

// Snapshot holds a point-in-time view of scraping health.
type Snapshot struct {
	// Run metrics (within lookback window).
	Runs            int     `json:"runs"`
	Running         int     `json:"running"`
	Complete        int     `json:"complete"`
	Canceled        int     `json:"canceled"`
	Aborted         int     `json:"aborted"`
	Failed          int     `json:"failed"`
	FailRate        float64 `json:"fail_rate"`
	ShowsFetched    int     `json:"shows_fetched"`
	ShowsFailed     int     `json:"shows_failed"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`

	// Dataset coverage.
	Listed      int     `json:"listed"`
	Enriched    int     `json:"enriched"`
	Partial     int     `json:"partial"`
	Placeholder int     `json:"placeholder_dates"`
	Coverage    float64 `json:"coverage"`

	LastEnrichAt  *time.Time `json:"last_enrich_at,omitempty"`
	LookbackHours int        `json:"lookback_hours"`
	CollectedAt   time.Time  `json:"collected_at"`
}

// Collector gathers metrics from the run log and the dataset files.
type Collector struct {
	store        store.Store
	basicPath    string
	detailedPath string
	now          func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store, basicPath, detailedPath string) *Collector {
	return &Collector{
		store:        st,
		basicPath:    basicPath,
		detailedPath: detailedPath,
		now:          time.Now,
	}
}

// Collect gathers a snapshot over the given lookback window. A window of 0
// covers every recorded run.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	var totalDur time.Duration
	var durCount int
	for _, r := range runs {
		if r.Kind == model.RunKindEnrich && r.Status != model.RunStatusRunning &&
			(snap.LastEnrichAt == nil || r.UpdatedAt.After(*snap.LastEnrichAt)) {
			at := r.UpdatedAt
			snap.LastEnrichAt = &at
		}
		if r.CreatedAt.Before(cutoff) {
			continue
		}

		snap.Runs++
		switch r.Status {
		case model.RunStatusRunning:
			snap.Running++
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusCanceled:
			snap.Canceled++
		case model.RunStatusAborted:
			snap.Aborted++
		case model.RunStatusFailed:
			snap.Failed++
		}

		if s := r.Summary; s != nil {
			if r.Kind == model.RunKindEnrich {
				snap.ShowsFetched += s.Succeeded + s.Partial
				snap.ShowsFailed += s.Failed
			}
			if r.Status == model.RunStatusComplete {
				totalDur += s.Duration
				durCount++
			}
		}
	}

	if finished := snap.Complete + snap.Canceled + snap.Aborted + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Aborted+snap.Failed) / float64(finished)
	}
	if durCount > 0 {
		snap.AvgDurationSecs = totalDur.Seconds() / float64(durCount)
	}

	if err := c.coverage(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Collector) coverage(snap *Snapshot) error {
	basic, err := dataset.Load[model.BasicRecord](c.basicPath)
	if err != nil {
		return eris.Wrap(err, "monitoring: load basic dataset")
	}
	detailed, err := dataset.Load[model.DetailRecord](c.detailedPath)
	if err != nil {
		return eris.Wrap(err, "monitoring: load detailed dataset")
	}

	snap.Listed = basic.Len()
	known := basic.IDs()
	for _, b := range detailed.Buckets() {
		for _, rec := range detailed.Records(b) {
			if _, ok := known[rec.ShowID]; !ok {
				continue
			}
			snap.Enriched++
			if rec.Partial {
				snap.Partial++
			}
			if rec.DateVerification.Confidence == model.DatePlaceholder {
				snap.Placeholder++
			}
		}
	}
	if snap.Listed > 0 {
		snap.Coverage = float64(snap.Enriched) / float64(snap.Listed)
	}
	return nil
}
