package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultMaxConcurrent    = 10
	DefaultDelay            = 200 * time.Millisecond
	DefaultRequestTimeout   = 30 * time.Second
	DefaultFailureThreshold = 25
	DefaultCheckpointEvery  = 50
)

// Options tunes a pipeline run.
type Options struct {
	// MaxConcurrent bounds the number of detail fetches in flight.
	MaxConcurrent int
	// Delay is the minimum spacing between fetch starts on one worker.
	Delay time.Duration
	// RequestTimeout bounds each detail fetch.
	RequestTimeout time.Duration
	// FailureThreshold aborts the run after this many consecutive fetch
	// failures. 0 disables the check.
	FailureThreshold int
	// CheckpointEvery persists the detailed dataset after this many merges.
	// 0 persists only at the end of the run.
	CheckpointEvery int
	// Force re-fetches shows that already have a detail record.
	Force bool
	// OnlyIDs restricts the run to these show ids when non-empty.
	OnlyIDs []string
	// Clock drives pacing and timestamps. Defaults to the wall clock.
	Clock Clock
	// OnResult is called from the merging goroutine after each fetch.
	OnResult func(Event)
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:    DefaultMaxConcurrent,
		Delay:            DefaultDelay,
		RequestTimeout:   DefaultRequestTimeout,
		FailureThreshold: DefaultFailureThreshold,
		CheckpointEvery:  DefaultCheckpointEvery,
	}
}

// Validate rejects options no run can start with.
func (o Options) Validate() error {
	switch {
	case o.MaxConcurrent <= 0:
		return eris.Errorf("enrich: max concurrent must be positive, got %d", o.MaxConcurrent)
	case o.Delay < 0:
		return eris.Errorf("enrich: delay must not be negative, got %s", o.Delay)
	case o.RequestTimeout <= 0:
		return eris.Errorf("enrich: request timeout must be positive, got %s", o.RequestTimeout)
	case o.FailureThreshold < 0:
		return eris.Errorf("enrich: failure threshold must not be negative, got %d", o.FailureThreshold)
	case o.CheckpointEvery < 0:
		return eris.Errorf("enrich: checkpoint interval must not be negative, got %d", o.CheckpointEvery)
	}
	return nil
}

// Clock abstracts time for pacing.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pacer spaces one worker's fetch starts at least delay apart.
type pacer struct {
	clock Clock
	delay time.Duration
	last  time.Time
}

// wait blocks until delay has passed since the previous start, then marks a
// new start.
func (p *pacer) wait(ctx context.Context) error {
	if !p.last.IsZero() {
		if d := p.delay - p.clock.Now().Sub(p.last); d > 0 {
			if err := p.clock.Sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.last = p.clock.Now()
	return nil
}
