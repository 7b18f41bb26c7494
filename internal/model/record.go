package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Category classifies a show as listed on the source site.
type Category string

const (
	CategoryPublic   Category = "Public"
	CategoryPrivate  Category = "Private"
	CategoryCanceled Category = "Canceled"
)

// ParseCategory normalizes the site's category text. Matching is
// case-insensitive and accepts the "Cancelled" spelling.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return CategoryPublic, true
	case "private":
		return CategoryPrivate, true
	case "canceled", "cancelled":
		return CategoryCanceled, true
	default:
		return "", false
	}
}

// UnmarshalJSON rejects values outside the known category set.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &MalformedRecordError{Field: "category", Reason: err.Error()}
	}
	parsed, ok := ParseCategory(s)
	if !ok {
		return &MalformedRecordError{Field: "category", Reason: "unknown value " + quote(s)}
	}
	*c = parsed
	return nil
}

// ActType separates shows by the performer's primary act from side projects.
type ActType string

const (
	ActTypePrimary     ActType = "PrimaryAct"
	ActTypeSideProject ActType = "SideProject"
)

// primaryActNames are the act-type labels the site uses for the main act.
var primaryActNames = map[string]bool{
	"primaryact":        true,
	"primary":           true,
	"primary act":       true,
	"jerry garcia band": true,
	"jgb":               true,
	"grateful dead":     true,
}

// ParseActType maps the site's act-type text onto the two-valued enum.
// Any other non-empty label is a side project.
func ParseActType(s string) (ActType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch {
	case key == "":
		return "", false
	case primaryActNames[key]:
		return ActTypePrimary, true
	default:
		return ActTypeSideProject, true
	}
}

// UnmarshalJSON accepts the canonical enum strings as well as raw site labels.
func (a *ActType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &MalformedRecordError{Field: "act_type", Reason: err.Error()}
	}
	if s == string(ActTypeSideProject) {
		*a = ActTypeSideProject
		return nil
	}
	parsed, ok := ParseActType(s)
	if !ok {
		return &MalformedRecordError{Field: "act_type", Reason: "empty value"}
	}
	*a = parsed
	return nil
}

// Link is a named reference to a page on the source site.
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BasicRecord is one row of the per-year event listing.
type BasicRecord struct {
	Date     string   `json:"date"`
	URL      string   `json:"url"`
	Venue    Link     `json:"venue"`
	Band     Link     `json:"band"`
	Songs    string   `json:"songs"`
	Category Category `json:"category"`
	ActType  ActType  `json:"act_type"`
	ShowID   string   `json:"show_id"`
}

// ID returns the merge key.
func (r BasicRecord) ID() string { return r.ShowID }

// Validate checks the fields every persisted record must carry.
func (r BasicRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ShowID) == "":
		return &MalformedRecordError{Field: "show_id", Reason: "missing"}
	case strings.TrimSpace(r.Date) == "":
		return &MalformedRecordError{ShowID: r.ShowID, Field: "date", Reason: "missing"}
	case r.Category == "":
		return &MalformedRecordError{ShowID: r.ShowID, Field: "category", Reason: "missing"}
	case r.ActType == "":
		return &MalformedRecordError{ShowID: r.ShowID, Field: "act_type", Reason: "missing"}
	}
	return nil
}

// Musician is one line-up entry from a show's detail page.
type Musician struct {
	Name       string `json:"name"`
	Instrument string `json:"instrument"`
}

// DateConfidence describes how far a show's date can be trusted.
type DateConfidence string

const (
	DateConfirmed   DateConfidence = "confirmed"
	DatePlaceholder DateConfidence = "placeholder"
	DateUnverified  DateConfidence = "unverified"
)

// DateVerification records where a show's date came from and whether the
// site flags it as a placeholder.
type DateVerification struct {
	TitleDate  string         `json:"title_date,omitempty"`
	PageDate   string         `json:"page_date,omitempty"`
	Note       string         `json:"note,omitempty"`
	Confidence DateConfidence `json:"confidence"`
}

// DetailFields is everything the detail-page extractor could recover.
type DetailFields struct {
	DateFromTitle string
	PageDate      string
	DateNote      string
	BandName      string
	VenueName     string
	Setlist       []string
	Musicians     []Musician
	Notes         []string
}

// Empty reports whether the extractor found nothing usable.
func (f *DetailFields) Empty() bool {
	return f == nil || (f.DateFromTitle == "" && f.PageDate == "" && f.BandName == "" &&
		f.VenueName == "" && len(f.Setlist) == 0 && len(f.Musicians) == 0 && len(f.Notes) == 0)
}

// DetailRecord is a BasicRecord enriched from the show's detail page.
type DetailRecord struct {
	BasicRecord

	Musicians        []Musician       `json:"musicians"`
	Notes            []string         `json:"notes"`
	Setlist          []string         `json:"setlist,omitempty"`
	PageBand         string           `json:"page_band,omitempty"`
	PageVenue        string           `json:"page_venue,omitempty"`
	DateVerification DateVerification `json:"date_verification"`
	Partial          bool             `json:"partial,omitempty"`
	EnrichedAt       time.Time        `json:"enriched_at"`
}

// Validate checks the embedded listing fields.
func (r DetailRecord) Validate() error {
	return r.BasicRecord.Validate()
}

// NewDetailRecord combines a listing row with extracted detail fields. A nil
// or empty fields value yields a partial record carrying only the listing data.
func NewDetailRecord(basic BasicRecord, fields *DetailFields, now time.Time) DetailRecord {
	rec := DetailRecord{
		BasicRecord: basic,
		Musicians:   []Musician{},
		Notes:       []string{},
		EnrichedAt:  now.UTC(),
	}
	if fields.Empty() {
		rec.Partial = true
		rec.DateVerification = DateVerification{Confidence: DateUnverified}
		return rec
	}

	if len(fields.Musicians) > 0 {
		rec.Musicians = fields.Musicians
	}
	if len(fields.Notes) > 0 {
		rec.Notes = fields.Notes
	}
	rec.Setlist = fields.Setlist
	rec.PageBand = fields.BandName
	rec.PageVenue = fields.VenueName
	rec.DateVerification = verifyDate(fields)
	return rec
}

// placeholderMarker is the site's default text when a date is not flagged.
const placeholderMarker = "date might be accurate"

func verifyDate(f *DetailFields) DateVerification {
	dv := DateVerification{
		TitleDate: f.DateFromTitle,
		PageDate:  f.PageDate,
		Note:      f.DateNote,
	}
	note := strings.ToLower(f.DateNote)
	switch {
	case note != "" && !strings.Contains(note, placeholderMarker):
		dv.Confidence = DatePlaceholder
	case f.PageDate != "" && f.DateFromTitle != "" && strings.HasPrefix(f.PageDate, f.DateFromTitle):
		dv.Confidence = DateConfirmed
	default:
		dv.Confidence = DateUnverified
	}
	return dv
}

func quote(s string) string { return `"` + s + `"` }
