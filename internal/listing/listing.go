// Package listing walks the site's year buckets and builds the basic dataset
// from the per-year events tables.
package listing

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/fetcher"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/scrape"
)

// Options configures a listing walk.
type Options struct {
	// BaseURL is the events page. Bucket pages are BaseURL?year=<bucket>.
	BaseURL string
	// Delay is the minimum spacing between page requests. 0 disables pacing.
	Delay time.Duration
}

// BucketReport describes the outcome of one bucket. Duplicates counts rows
// whose date and venue matched an earlier row in the bucket and were keyed
// with a suffix instead.
type BucketReport struct {
	Bucket     string `json:"bucket"`
	Rows       int    `json:"rows"`
	Records    int    `json:"records"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Err        error  `json:"-"`
}

// Fetcher produces BasicRecords from listing pages.
type Fetcher struct {
	pages   fetcher.PageFetcher
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a listing Fetcher.
func New(pages fetcher.PageFetcher, opts Options) *Fetcher {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Fetcher{
		pages:   pages,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "listing")),
	}
}

// Years returns the bucket labels offered by the events page year selector.
func (f *Fetcher) Years(ctx context.Context) ([]string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "listing: wait")
	}
	markup, err := f.pages.FetchPage(ctx, f.opts.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "listing: fetch events page")
	}
	years, err := scrape.ParseYearOptions(markup)
	if err != nil {
		return nil, eris.Wrap(err, "listing: parse year selector")
	}
	return years, nil
}

// Fetch walks buckets in order and accumulates their records. A bucket whose
// page cannot be fetched or parsed is reported and the walk continues; rows
// that cannot be keyed are skipped. The error is non-nil only when ctx ends
// the walk early; the dataset then holds the buckets completed so far.
func (f *Fetcher) Fetch(ctx context.Context, buckets []string) (*dataset.Basic, []BucketReport, error) {
	ds := dataset.New[model.BasicRecord]()
	reports := make([]BucketReport, 0, len(buckets))

	for _, bucket := range buckets {
		if err := f.limiter.Wait(ctx); err != nil {
			return ds, reports, eris.Wrap(err, "listing: wait")
		}

		rep := f.fetchBucket(ctx, ds, bucket)
		reports = append(reports, rep)

		if rep.Err != nil {
			if ctx.Err() != nil {
				return ds, reports, eris.Wrap(ctx.Err(), "listing: canceled")
			}
			f.log.Warn("bucket failed",
				zap.String("bucket", bucket),
				zap.Int("records", rep.Records),
				zap.Error(rep.Err),
			)
			continue
		}
		f.log.Info("bucket fetched",
			zap.String("bucket", bucket),
			zap.Int("rows", rep.Rows),
			zap.Int("records", rep.Records),
			zap.Int("skipped", rep.Skipped),
			zap.Int("duplicates", rep.Duplicates),
		)
	}
	return ds, reports, nil
}

func (f *Fetcher) fetchBucket(ctx context.Context, ds *dataset.Basic, bucket string) BucketReport {
	rep := BucketReport{Bucket: bucket}

	pageURL, err := bucketURL(f.opts.BaseURL, bucket)
	if err != nil {
		rep.Err = err
		return rep
	}

	markup, err := f.pages.FetchPage(ctx, pageURL)
	if err != nil {
		rep.Err = eris.Wrapf(err, "listing: fetch bucket %s", bucket)
		return rep
	}

	rows, err := scrape.ParseEventTable(markup, pageURL)
	if err != nil {
		rep.Err = eris.Wrapf(err, "listing: parse bucket %s", bucket)
		return rep
	}

	ds.AddBucket(bucket)
	rep.Rows = len(rows)
	for _, row := range rows {
		rec, err := NewBasicRecord(row)
		if err != nil {
			var mre *model.MalformedRecordError
			if !errors.As(err, &mre) {
				rep.Err = err
				return rep
			}
			rep.Skipped++
			f.log.Warn("skipping malformed row",
				zap.String("bucket", bucket),
				zap.String("date", row.Date),
				zap.String("venue_url", row.VenueURL),
				zap.Error(err),
			)
			continue
		}
		if ds.Has(bucket, rec.ShowID) {
			base := rec.ShowID
			rec.ShowID = model.DuplicateShowID(base, row.SiteShowID, 2)
			for n := 3; ds.Has(bucket, rec.ShowID); n++ {
				rec.ShowID = model.DuplicateShowID(base, "", n)
			}
			rep.Duplicates++
			f.log.Warn("duplicate show id in bucket",
				zap.String("bucket", bucket),
				zap.String("show_id", base),
				zap.String("assigned", rec.ShowID),
				zap.String("date", row.Date),
			)
		}
		if replaced := ds.Merge(bucket, rec); replaced {
			rep.Err = eris.Errorf("listing: show %s replaced in bucket %s", rec.ShowID, bucket)
			return rep
		}
		rep.Records++
	}
	return rep
}

// NewBasicRecord normalizes a listing row. It returns a
// *model.MalformedRecordError when the row cannot be keyed or classified.
func NewBasicRecord(row scrape.ListingRow) (model.BasicRecord, error) {
	id, err := model.NewShowID(row.Date, row.VenueURL)
	if err != nil {
		return model.BasicRecord{}, err
	}

	category, ok := model.ParseCategory(row.Category)
	if !ok {
		return model.BasicRecord{}, &model.MalformedRecordError{
			ShowID: id, Field: "category", Reason: "unknown value \"" + row.Category + "\"",
		}
	}
	actType, ok := model.ParseActType(row.ActType)
	if !ok {
		return model.BasicRecord{}, &model.MalformedRecordError{ShowID: id, Field: "act_type", Reason: "missing"}
	}

	rec := model.BasicRecord{
		Date:     row.Date,
		URL:      row.URL,
		Venue:    model.Link{Name: row.VenueName, URL: row.VenueURL},
		Band:     model.Link{Name: row.BandName, URL: row.BandURL},
		Songs:    row.Songs,
		Category: category,
		ActType:  actType,
		ShowID:   id,
	}
	if err := rec.Validate(); err != nil {
		return model.BasicRecord{}, err
	}
	return rec, nil
}

func bucketURL(base, bucket string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "listing: parse base url %s", base)
	}
	q := u.Query()
	q.Set("year", bucket)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Refresh folds a walk's result into the previously saved dataset. Buckets
// fetched successfully replace their prior contents; buckets that failed or
// were not walked keep what prior had. prior is not modified.
func Refresh(prior, fresh *dataset.Basic, reports []BucketReport) *dataset.Basic {
	out := dataset.New[model.BasicRecord]()
	if prior != nil {
		out = prior.Clone()
	}

	refreshed := make(map[string]bool, len(reports))
	for _, rep := range reports {
		if rep.Err == nil {
			refreshed[rep.Bucket] = true
		}
	}
	out.Prune(func(bucket string, _ model.BasicRecord) bool {
		return !refreshed[bucket]
	})

	for _, bucket := range fresh.Buckets() {
		if !refreshed[bucket] {
			continue
		}
		out.AddBucket(bucket)
		for _, rec := range fresh.Records(bucket) {
			out.Merge(bucket, rec)
		}
	}
	return out
}
