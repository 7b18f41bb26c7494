package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/fetcher"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/scrape"
)

func row(date, venue, category, act string) string {
	return siteRow(date, venue, category, act, "1")
}

func siteRow(date, venue, category, act, siteID string) string {
	return fmt.Sprintf(`<tr>
<td><a href="/events/%[1]s"><span>%[1]s</span></a></td>
<td><a href="%[2]s">Venue</a></td>
<td><a href="/bands/1">Jerry Garcia Band</a></td>
<td>10</td><td>%[3]s</td><td>%[4]s</td><td>%[5]s</td></tr>`, date, venue, category, act, siteID)
}

func table(rows ...string) string {
	return `<html><body><table id="datatable_events"><tbody>` + strings.Join(rows, "") + `</tbody></table></body></html>`
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("year") {
		case "":
			fmt.Fprint(w, `<select id="year-select"><option value="pre-1965">pre-1965</option><option value="1975">1975</option></select>`)
		case "pre-1965":
			fmt.Fprint(w, table(row("1959-10-00 [Thu]", "/venues/1133", "Public", "Side Project")))
		case "1975":
			fmt.Fprint(w, table(
				row("1975-12-31", "/venues/311", "Public", "Jerry Garcia Band"),
				row("1975-08-13", "/venues/42", "Private", "Jerry Garcia Band"),
				row("n/a", "/venues/", "Public", "Primary"),
			))
		case "1974":
			fmt.Fprint(w, table(
				siteRow("1974-03-15 [early]", "/venues/311", "Public", "Jerry Garcia Band", "4821"),
				siteRow("1974-03-15 [late]", "/venues/311", "Public", "Jerry Garcia Band", "4822"),
				siteRow("1974-04-00", "/venues/42", "Public", "Jerry Garcia Band", ""),
				siteRow("1974-04-01", "/venues/42", "Public", "Jerry Garcia Band", ""),
			))
		case "1976":
			w.WriteHeader(http.StatusInternalServerError)
		case "1977":
			fmt.Fprint(w, `<html><body>No events</body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(srv *httptest.Server, delay time.Duration) *Fetcher {
	return New(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 2 * time.Second}), Options{
		BaseURL: srv.URL + "/events",
		Delay:   delay,
	})
}

func TestYears(t *testing.T) {
	srv := newSite(t)

	years, err := newTestFetcher(srv, 0).Years(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-1965", "1975"}, years)
}

func TestFetch_BuildsDataset(t *testing.T) {
	srv := newSite(t)

	ds, reports, err := newTestFetcher(srv, 0).Fetch(context.Background(), []string{"1975", "pre-1965"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pre-1965", "1975"}, ds.Buckets())
	assert.Equal(t, 3, ds.Len())

	recs := ds.Records("1975")
	require.Len(t, recs, 2)
	assert.Equal(t, "19750813_42", recs[0].ShowID)
	assert.Equal(t, model.CategoryPrivate, recs[0].Category)
	assert.Equal(t, "19751231_311", recs[1].ShowID)
	assert.Equal(t, srv.URL+"/events/1975-12-31", recs[1].URL)

	pre := ds.Records("pre-1965")
	require.Len(t, pre, 1)
	assert.Equal(t, "19591001_1133", pre[0].ShowID)
	assert.Equal(t, model.ActTypeSideProject, pre[0].ActType)

	require.Len(t, reports, 2)
	assert.Equal(t, BucketReport{Bucket: "1975", Rows: 3, Records: 2, Skipped: 1}, reports[0])
}

func TestFetch_SameDateAndVenueKeepsEveryShow(t *testing.T) {
	srv := newSite(t)

	ds, reports, err := newTestFetcher(srv, 0).Fetch(context.Background(), []string{"1974"})
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, BucketReport{Bucket: "1974", Rows: 4, Records: 4, Duplicates: 2}, reports[0])
	assert.Equal(t, reports[0].Records, ds.Len())

	recs := ds.Records("1974")
	require.Len(t, recs, 4)
	assert.Equal(t, "19740315_311", recs[0].ShowID)
	assert.Equal(t, "1974-03-15 [early]", recs[0].Date)
	assert.Equal(t, "19740315_311-4822", recs[1].ShowID)
	assert.Equal(t, "1974-03-15 [late]", recs[1].Date)
	assert.Equal(t, "19740401_42", recs[2].ShowID)
	assert.Equal(t, "1974-04-00", recs[2].Date)
	assert.Equal(t, "19740401_42-2", recs[3].ShowID)
	assert.Equal(t, "1974-04-01", recs[3].Date)

	again, _, err := newTestFetcher(srv, 0).Fetch(context.Background(), []string{"1974"})
	require.NoError(t, err)
	assert.Equal(t, ds.IDs(), again.IDs())
}

func TestFetch_BucketFailureDoesNotAbortOthers(t *testing.T) {
	srv := newSite(t)

	ds, reports, err := newTestFetcher(srv, 0).Fetch(context.Background(), []string{"1975", "1976", "1977", "pre-1965"})
	require.NoError(t, err)

	require.Len(t, reports, 4)
	assert.Error(t, reports[1].Err)
	assert.NoError(t, reports[2].Err)
	assert.Zero(t, reports[2].Records)

	// The failed bucket is absent; the empty one is kept.
	assert.Equal(t, []string{"pre-1965", "1975", "1977"}, ds.Buckets())
	assert.Equal(t, 3, ds.Len())
}

func TestFetch_PacesRequests(t *testing.T) {
	srv := newSite(t)

	start := time.Now()
	_, _, err := newTestFetcher(srv, 40*time.Millisecond).Fetch(context.Background(), []string{"1975", "1977", "pre-1965"})
	require.NoError(t, err)

	// Three requests need at least two full gaps.
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestFetch_Canceled(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	pages := fetcher.FetchFunc(func(ctx context.Context, url string) (string, error) {
		if calls.Add(1) == 2 {
			cancel()
			return "", ctx.Err()
		}
		return table(row("1975-08-13", "/venues/42", "Public", "Primary")), nil
	})

	f := New(pages, Options{BaseURL: "https://jerrybase.com/events"})
	ds, reports, err := f.Fetch(ctx, []string{"1975", "1976", "1977"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, reports, 2)
	assert.Equal(t, 1, ds.Len())
}

func TestNewBasicRecord(t *testing.T) {
	tests := []struct {
		name    string
		row     scrape.ListingRow
		wantID  string
		wantErr bool
	}{
		{
			name:   "full row",
			row:    scrape.ListingRow{Date: "1975-08-13 [Wed]", VenueURL: "https://jerrybase.com/venues/42", Category: "public", ActType: "Jerry Garcia Band"},
			wantID: "19750813_42",
		},
		{
			name:   "venue placeholder",
			row:    scrape.ListingRow{Date: "1966-??-??", Category: "Cancelled", ActType: "Old & In the Way"},
			wantID: "19660101_0",
		},
		{
			name:    "unkeyable",
			row:     scrape.ListingRow{Date: "TBA", Category: "Public", ActType: "Primary"},
			wantErr: true,
		},
		{
			name:    "unknown category",
			row:     scrape.ListingRow{Date: "1975-08-13", VenueURL: "/venues/42", Category: "Rumored", ActType: "Primary"},
			wantErr: true,
		},
		{
			name:    "missing act type",
			row:     scrape.ListingRow{Date: "1975-08-13", VenueURL: "/venues/42", Category: "Public"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewBasicRecord(tt.row)
			if tt.wantErr {
				var mre *model.MalformedRecordError
				assert.True(t, errors.As(err, &mre))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, rec.ShowID)
		})
	}
}

func TestRefresh(t *testing.T) {
	rec := func(id string) model.BasicRecord {
		return model.BasicRecord{ShowID: id, Date: id[:8], Category: model.CategoryPublic, ActType: model.ActTypePrimary}
	}
	prior := dataset.New[model.BasicRecord]()
	prior.Merge("1975", rec("19750101_1"))
	prior.Merge("1976", rec("19760101_1"))
	prior.Merge("1977", rec("19770101_1"))

	fresh := dataset.New[model.BasicRecord]()
	fresh.Merge("1975", rec("19750202_2"))
	fresh.AddBucket("1977")

	out := Refresh(prior, fresh, []BucketReport{
		{Bucket: "1975"},
		{Bucket: "1976", Err: errors.New("boom")},
		{Bucket: "1977"},
	})

	assert.Equal(t, []string{"1975", "1976", "1977"}, out.Buckets())
	require.Len(t, out.Records("1975"), 1)
	assert.Equal(t, "19750202_2", out.Records("1975")[0].ShowID)
	assert.Len(t, out.Records("1976"), 1)
	assert.Empty(t, out.Records("1977"))
	assert.Equal(t, 3, prior.Len())
}
