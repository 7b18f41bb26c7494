package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sells-group/jerrybase-cli/internal/model"
)

// ParseError reports markup from which no usable fields could be extracted.
type ParseError struct {
	Page   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s page: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("parse %s page: %s", e.Page, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DetailParser extracts show details from a detail page.
type DetailParser struct{}

// ParseDetail implements the enrichment pipeline's parser port.
func (DetailParser) ParseDetail(markup string) (*model.DetailFields, error) {
	return ParseDetail(markup)
}

// ParseDetail extracts the date, band, venue, setlist, musicians and notes
// of a show. It returns a *ParseError when none of them are present.
func ParseDetail(markup string) (*model.DetailFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, &ParseError{Page: "detail", Err: err}
	}

	f := &model.DetailFields{}

	// Titles read "<date> <band>". Anything else (error pages) is ignored.
	if title := cleanText(doc.Find("title").First().Text()); title != "" {
		date, band, _ := strings.Cut(title, " ")
		if isTitleDate(date) {
			f.DateFromTitle = date
			f.BandName = strings.TrimSpace(band)
		}
	}

	f.PageDate = cleanText(doc.Find(`h4[style*="display: inline"]`).First().Text())
	f.DateNote = cleanText(doc.Find("span.text-muted").First().Text())
	f.VenueName = cleanText(doc.Find(`h4 a[href*="/venues/"]`).First().Text())

	f.Setlist = parseSetlist(doc)
	f.Musicians = parseMusicians(doc.Find("#musicians-content").First())

	doc.Find(".notes-container li").Each(func(_ int, li *goquery.Selection) {
		if note := cleanText(li.Text()); note != "" {
			f.Notes = append(f.Notes, note)
		}
	})

	if f.Empty() {
		return nil, &ParseError{Page: "detail", Reason: "no extractable fields"}
	}
	return f, nil
}

// isTitleDate reports whether tok is a date token such as "1975-08-13".
func isTitleDate(tok string) bool {
	if tok == "" || tok[0] < '0' || tok[0] > '9' {
		return false
	}
	_, ok := model.DateFragment(tok)
	return ok
}

// parseSetlist prefers the song links of the setlist card and falls back to
// the first link of each row of a song table.
func parseSetlist(doc *goquery.Document) []string {
	var songs []string
	doc.Find("#simple-card a").Each(func(_ int, a *goquery.Selection) {
		if class, _ := a.Attr("class"); strings.TrimSpace(class) != "" {
			return
		}
		if s := cleanText(a.Text()); s != "" {
			songs = append(songs, s)
		}
	})
	if len(songs) > 0 {
		return songs
	}

	doc.Find(`table[id^="datatable_"] tr`).Each(func(_ int, tr *goquery.Selection) {
		if s := cleanText(tr.Find("a").First().Text()); s != "" {
			songs = append(songs, s)
		}
	})
	return songs
}

// parseMusicians reads alternating name and "- instrument" lines. A trailing
// name without an instrument line gets "unknown".
func parseMusicians(sel *goquery.Selection) []model.Musician {
	lines := textLines(sel)
	var out []model.Musician
	for i := 0; i < len(lines); i += 2 {
		m := model.Musician{Name: lines[i], Instrument: "unknown"}
		if i+1 < len(lines) {
			if inst := strings.Trim(lines[i+1], "- "); inst != "" {
				m.Instrument = inst
			}
		}
		out = append(out, m)
	}
	return out
}

// textLines returns the non-empty trimmed lines of every text node under sel,
// in document order.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = cleanText(line); line != "" {
					lines = append(lines, line)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return lines
}
