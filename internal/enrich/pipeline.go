// Package enrich fetches the detail page of every listed show that has not
// been enriched yet and merges the results into the detailed dataset.
//
// A run drives a fixed pool of workers from a single work queue. Each worker
// paces its own fetch starts; all merges and checkpoints happen on the
// calling goroutine, so the detailed dataset has a single writer.
package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/fetcher"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/resilience"
)

// ErrSourceUnavailable is returned when a run stops early after too many
// consecutive fetch failures.
var ErrSourceUnavailable = eris.New("enrich: source unavailable")

// Parser extracts detail fields from a fetched page.
type Parser interface {
	ParseDetail(markup string) (*model.DetailFields, error)
}

// SaveFunc persists a snapshot of the detailed dataset.
type SaveFunc func(ds *dataset.Detailed) error

// SaveTo returns a SaveFunc writing atomically to path.
func SaveTo(path string) SaveFunc {
	return func(ds *dataset.Detailed) error {
		return dataset.Save(ds, path)
	}
}

// Pipeline enriches basic records with their detail pages.
type Pipeline struct {
	pages  fetcher.PageFetcher
	parser Parser
	save   SaveFunc
	opts   Options
	log    *zap.Logger
}

// New validates opts and returns a Pipeline.
func New(pages fetcher.PageFetcher, parser Parser, save SaveFunc, opts Options) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if pages == nil || parser == nil || save == nil {
		return nil, eris.New("enrich: fetcher, parser and save are required")
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	return &Pipeline{
		pages:  pages,
		parser: parser,
		save:   save,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "enrich")),
	}, nil
}

type workItem struct {
	bucket string
	rec    model.BasicRecord
}

type result struct {
	item   workItem
	detail *model.DetailRecord
	err    error
}

// Run enriches every basic record lacking a detail record in prior. prior is
// not modified; the returned dataset is the persisted result.
//
// Per-show failures are reported in the summary and never end the run. The
// error is non-nil when persisting fails (a *dataset.PersistenceError) or
// when the consecutive-failure threshold is reached (ErrSourceUnavailable).
// Canceling ctx stops new fetches, lets in-flight ones finish and persists
// what was merged; the summary is then marked Canceled.
func (p *Pipeline) Run(ctx context.Context, basic *dataset.Basic, prior *dataset.Detailed) (*dataset.Detailed, Summary, error) {
	start := p.opts.Clock.Now()

	out := dataset.New[model.DetailRecord]()
	if prior != nil {
		out = prior.Clone()
	}

	sum := Summary{Total: basic.Len()}
	sum.Orphaned = out.Prune(func(bucket string, r model.DetailRecord) bool {
		return basic.Has(bucket, r.ShowID)
	})
	if sum.Orphaned > 0 {
		p.log.Warn("dropped detail records missing from the listing", zap.Int("count", sum.Orphaned))
	}

	work := p.workSet(basic, out, &sum)
	sum.WorkSet = len(work)
	p.log.Info("starting enrichment",
		zap.Int("records", sum.Total),
		zap.Int("work_set", sum.WorkSet),
		zap.Int("skipped", sum.Skipped),
		zap.Int("no_url", sum.NoURL),
		zap.Int("max_concurrent", p.opts.MaxConcurrent),
		zap.Duration("delay", p.opts.Delay),
	)

	runErr := p.process(ctx, work, out, &sum)

	if runErr == nil || !isPersistence(runErr) {
		if err := p.save(out); err != nil {
			runErr = err
		}
	}

	processed := sum.Succeeded + sum.Partial + len(sum.Failed)
	sum.Canceled = !sum.Aborted && ctx.Err() != nil && processed < sum.WorkSet
	sum.Duration = p.opts.Clock.Now().Sub(start)
	p.log.Info("enrichment finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("partial", sum.Partial),
		zap.Int("failed", len(sum.Failed)),
		zap.Bool("aborted", sum.Aborted),
		zap.Bool("canceled", sum.Canceled),
		zap.Duration("duration", sum.Duration),
	)
	return out, sum, runErr
}

// workSet lists the records to fetch in bucket and id order.
func (p *Pipeline) workSet(basic *dataset.Basic, done *dataset.Detailed, sum *Summary) []workItem {
	var only map[string]bool
	if len(p.opts.OnlyIDs) > 0 {
		only = make(map[string]bool, len(p.opts.OnlyIDs))
		for _, id := range p.opts.OnlyIDs {
			only[id] = true
		}
	}

	var work []workItem
	for _, bucket := range basic.Buckets() {
		for _, rec := range basic.Records(bucket) {
			if only != nil && !only[rec.ShowID] {
				continue
			}
			if !p.opts.Force {
				if done.Has(bucket, rec.ShowID) {
					sum.Skipped++
					continue
				}
			}
			if rec.URL == "" {
				sum.NoURL++
				continue
			}
			work = append(work, workItem{bucket: bucket, rec: rec})
		}
	}
	return work
}

// process runs the worker pool over work and merges results into out.
func (p *Pipeline) process(ctx context.Context, work []workItem, out *dataset.Detailed, sum *Summary) error {
	if len(work) == 0 {
		return nil
	}

	breaker := resilience.NewBreaker(p.opts.FailureThreshold, func(n int) {
		p.log.Error("too many consecutive fetch failures, aborting", zap.Int("consecutive", n))
	})
	abort := make(chan struct{})
	var abortOnce sync.Once
	stop := func() { abortOnce.Do(func() { close(abort) }) }

	jobs := make(chan workItem)
	results := make(chan result)

	go func() {
		defer close(jobs)
		for _, it := range work {
			select {
			case <-ctx.Done():
				return
			case <-abort:
				return
			case jobs <- it:
			}
		}
	}()

	var g errgroup.Group
	workers := min(p.opts.MaxConcurrent, len(work))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			p.work(withWorker(ctx, w), jobs, results, breaker)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var (
		merges   int
		runErr   error
		onResult = p.opts.OnResult
	)
	for res := range results {
		if res.err != nil {
			sum.Failed = append(sum.Failed, model.FailedItem{
				ShowID:    res.item.rec.ShowID,
				Bucket:    res.item.bucket,
				URL:       res.item.rec.URL,
				Error:     res.err.Error(),
				ErrorType: resilience.ClassifyError(res.err),
				FailedAt:  p.opts.Clock.Now().UTC(),
			})
			p.log.Warn("detail fetch failed",
				zap.String("show_id", res.item.rec.ShowID),
				zap.String("url", res.item.rec.URL),
				zap.Error(res.err),
			)
			if breaker.Record(res.err) && !sum.Aborted {
				sum.Aborted = true
				if runErr == nil {
					runErr = eris.Wrapf(ErrSourceUnavailable, "after %d consecutive failures", breaker.Consecutive())
				}
				stop()
			}
			if onResult != nil {
				onResult(Event{ShowID: res.item.rec.ShowID, Bucket: res.item.bucket, Outcome: OutcomeFailed, Err: res.err})
			}
			continue
		}

		breaker.Record(nil)
		out.Merge(res.item.bucket, *res.detail)
		outcome := OutcomeEnriched
		if res.detail.Partial {
			outcome = OutcomePartial
			sum.Partial++
		} else {
			sum.Succeeded++
		}
		if onResult != nil {
			onResult(Event{ShowID: res.item.rec.ShowID, Bucket: res.item.bucket, Outcome: outcome})
		}

		merges++
		if every := p.opts.CheckpointEvery; every > 0 && merges%every == 0 && !isPersistence(runErr) {
			if err := p.save(out); err != nil {
				p.log.Error("checkpoint failed", zap.Error(err))
				runErr = err
				stop()
				continue
			}
			p.log.Debug("checkpoint saved", zap.Int("merged", merges))
		}
	}
	return runErr
}

// work is one pool worker. It stops fetching once ctx is done or the breaker
// has tripped, but keeps draining jobs so the dispatcher can exit.
func (p *Pipeline) work(ctx context.Context, jobs <-chan workItem, results chan<- result, breaker *resilience.Breaker) {
	pace := &pacer{clock: p.opts.Clock, delay: p.opts.Delay}
	for it := range jobs {
		if ctx.Err() != nil || breaker.Allow() != nil {
			continue
		}
		if err := pace.wait(ctx); err != nil {
			continue
		}
		results <- p.fetch(ctx, it)
	}
}

// fetch retrieves and parses one detail page. The request runs on a context
// detached from ctx's cancellation so a stop lets it finish or time out.
func (p *Pipeline) fetch(ctx context.Context, it workItem) result {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.RequestTimeout)
	defer cancel()

	markup, err := p.pages.FetchPage(reqCtx, it.rec.URL)
	if err != nil {
		return result{item: it, err: err}
	}

	fields, err := p.parser.ParseDetail(markup)
	if err != nil {
		p.log.Debug("detail page had no extractable fields, keeping listing data",
			zap.String("show_id", it.rec.ShowID),
			zap.Error(err),
		)
		fields = nil
	}
	rec := model.NewDetailRecord(it.rec, fields, p.opts.Clock.Now())
	return result{item: it, detail: &rec}
}

func isPersistence(err error) bool {
	var pe *dataset.PersistenceError
	return errors.As(err, &pe)
}

type workerKey struct{}

func withWorker(ctx context.Context, w int) context.Context {
	return context.WithValue(ctx, workerKey{}, w)
}

// WorkerFromContext returns the index of the pool worker issuing a fetch.
func WorkerFromContext(ctx context.Context) (int, bool) {
	w, ok := ctx.Value(workerKey{}).(int)
	return w, ok
}

// Event reports the outcome of one work item.
type Event struct {
	ShowID  string
	Bucket  string
	Outcome Outcome
	Err     error
}

// Outcome classifies a processed work item.
type Outcome string

const (
	OutcomeEnriched Outcome = "enriched"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
)

// Summary reports what a run did.
type Summary struct {
	Total     int
	WorkSet   int
	Succeeded int
	Partial   int
	Failed    []model.FailedItem
	// Skipped counts shows that already had a detail record.
	Skipped int
	// NoURL counts shows without a detail page; they stay un-enriched.
	NoURL    int
	Orphaned int
	Aborted  bool
	Canceled bool
	Duration time.Duration
}

// FailedIDs lists the show ids a re-run is expected to retry.
func (s Summary) FailedIDs() []string {
	ids := make([]string, len(s.Failed))
	for i, f := range s.Failed {
		ids[i] = f.ShowID
	}
	return ids
}

// Status maps the summary onto a run-log status.
func (s Summary) Status() model.RunStatus {
	switch {
	case s.Aborted:
		return model.RunStatusAborted
	case s.Canceled:
		return model.RunStatusCanceled
	default:
		return model.RunStatusComplete
	}
}

// RunSummary converts the summary into its run-log form.
func (s Summary) RunSummary() *model.RunSummary {
	return &model.RunSummary{
		Records:   s.Total,
		Succeeded: s.Succeeded,
		Partial:   s.Partial,
		Failed:    len(s.Failed),
		Skipped:   s.Skipped,
		NoURL:     s.NoURL,
		Orphaned:  s.Orphaned,
		Duration:  s.Duration,
	}
}
