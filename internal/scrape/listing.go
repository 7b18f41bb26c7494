// Package scrape extracts show data from jerrybase.com markup: the year
// selector, the per-year events table and the per-show detail page.
package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ListingRow is one row of the per-year events table, before normalization.
type ListingRow struct {
	Date       string
	URL        string
	VenueName  string
	VenueURL   string
	BandName   string
	BandURL    string
	Songs      string
	Category   string
	ActType    string
	SiteShowID string
}

// minListingCells is the number of cells a complete events-table row carries.
const minListingCells = 7

// ParseYearOptions returns the values of the year selector on the events page.
func ParseYearOptions(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, &ParseError{Page: "events", Err: err}
	}

	sel := doc.Find("select#year-select")
	if sel.Length() == 0 {
		return nil, &ParseError{Page: "events", Reason: "year selector not found"}
	}

	var years []string
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		v, ok := opt.Attr("value")
		if !ok {
			v = opt.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			years = append(years, v)
		}
	})
	return years, nil
}

// ParseEventTable extracts the rows of the events table. Relative links are
// resolved against baseURL. A page without the table yields no rows; rows
// with fewer than seven cells are ignored.
func ParseEventTable(markup, baseURL string) ([]ListingRow, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse base url %s", baseURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, &ParseError{Page: "listing", Err: err}
	}

	var rows []ListingRow
	doc.Find("table#datatable_events tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < minListingCells {
			return
		}
		cell := func(i int) *goquery.Selection { return cells.Eq(i) }

		rows = append(rows, ListingRow{
			Date:       cleanText(cell(0).Find("span").First().Text()),
			URL:        resolveHref(base, cell(0).Find("a").First()),
			VenueName:  cleanText(cell(1).Text()),
			VenueURL:   resolveHref(base, cell(1).Find("a").First()),
			BandName:   cleanText(cell(2).Text()),
			BandURL:    resolveHref(base, cell(2).Find("a").First()),
			Songs:      cleanText(cell(3).Text()),
			Category:   cleanText(cell(4).Text()),
			ActType:    cleanText(cell(5).Text()),
			SiteShowID: cleanText(cell(6).Text()),
		})
	})
	return rows, nil
}

func resolveHref(base *url.URL, a *goquery.Selection) string {
	href, ok := a.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// cleanText trims and collapses internal whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
