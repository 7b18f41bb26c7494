package model

import "time"

// RunKind identifies which stage a recorded run executed.
type RunKind string

const (
	RunKindListing RunKind = "listing"
	RunKindEnrich  RunKind = "enrich"
)

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusCanceled RunStatus = "canceled"
	RunStatusAborted  RunStatus = "aborted"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded invocation of the listing fetcher or the enrichment pipeline.
type Run struct {
	ID        string      `json:"id"`
	Kind      RunKind     `json:"kind"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the counters reported at the end of a run.
type RunSummary struct {
	Records   int           `json:"records"`
	Succeeded int           `json:"succeeded"`
	Partial   int           `json:"partial"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	NoURL     int           `json:"no_url"`
	Orphaned  int           `json:"orphaned"`
	Duration  time.Duration `json:"duration"`
}

// FailedItem is a show whose detail page could not be retrieved. It stays
// un-enriched and is retried by the next run.
type FailedItem struct {
	ShowID    string    `json:"show_id"`
	Bucket    string    `json:"bucket"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient" or "permanent"
	FailedAt  time.Time `json:"failed_at"`
}
