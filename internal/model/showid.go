package model

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ShowIDSuffixSep separates a show id from the suffix that keeps it unique
// when two rows in a bucket share a date and venue.
const ShowIDSuffixSep = "-"

const (
	showIDSep        = "_"
	unknownDateFrag  = "00000000"
	unknownVenueFrag = "0"
)

// dateRe matches the leading YYYY[-MM[-DD]] token of a raw listing date. The
// compact YYYYMMDD form and "??" placeholders are accepted too.
var (
	dateRe   = regexp.MustCompile(`(\d{4})(?:[-/.]?(\d{2}|\?\?))?(?:[-/.]?(\d{2}|\?\?))?`)
	digitsRe = regexp.MustCompile(`\d+`)
	suffixRe = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// NewShowID derives the stable merge key for a show from its raw listing date
// and venue URL: "<YYYYMMDD>_<venue number>".
//
// Unknown month or day parts ("00", "??" or absent) are filled with "01", so
// "1959-10-00 [Thu]" yields "19591001". When only one fragment is usable the
// other is replaced by a placeholder; when neither is, a MalformedRecordError
// is returned.
func NewShowID(rawDate, venueURL string) (string, error) {
	date, dateOK := DateFragment(rawDate)
	venue, venueOK := VenueFragment(venueURL)
	if !dateOK && !venueOK {
		return "", &MalformedRecordError{
			Field:  "show_id",
			Reason: "no usable date or venue fragment in " + quote(rawDate) + ", " + quote(venueURL),
		}
	}
	if !dateOK {
		date = unknownDateFrag
	}
	if !venueOK {
		venue = unknownVenueFrag
	}
	return date + showIDSep + venue, nil
}

// DateFragment returns the zero-filled 8-digit date of a raw listing date.
func DateFragment(rawDate string) (string, bool) {
	m := dateRe.FindStringSubmatch(rawDate)
	if m == nil {
		return "", false
	}
	return m[1] + fillPart(m[2]) + fillPart(m[3]), true
}

func fillPart(p string) string {
	if p == "" || p == "00" || p == "??" {
		return "01"
	}
	return p
}

// VenueFragment returns the venue's numeric reference: the trailing path
// segment when it is numeric, otherwise the last digit run in the path.
func VenueFragment(venueURL string) (string, bool) {
	venueURL = strings.TrimSpace(venueURL)
	if venueURL == "" {
		return "", false
	}
	path := venueURL
	if u, err := url.Parse(venueURL); err == nil {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	last := segments[len(segments)-1]
	if last != "" && digitsRe.FindString(last) == last {
		return last, true
	}
	runs := digitsRe.FindAllString(path, -1)
	if len(runs) == 0 {
		return "", false
	}
	return runs[len(runs)-1], true
}

// DuplicateShowID derives the key for a row whose date and venue collide with
// an earlier row in the same bucket, such as early and late sets. The site's
// own show id is used as the suffix when the row carries one; otherwise the
// row's ordinal n (at least 2) among the colliding rows.
func DuplicateShowID(id, siteID string, n int) string {
	if s := suffixRe.ReplaceAllString(siteID, ""); s != "" {
		return id + ShowIDSuffixSep + s
	}
	return id + ShowIDSuffixSep + strconv.Itoa(max(n, 2))
}
