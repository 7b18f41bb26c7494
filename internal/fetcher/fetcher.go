// Package fetcher retrieves raw page markup from the source site.
package fetcher

import (
	"context"
	"fmt"

	"github.com/sells-group/jerrybase-cli/internal/resilience"
)

// PageFetcher returns the raw markup of a page.
type PageFetcher interface {
	// FetchPage retrieves url and returns its decoded body. Failures are
	// reported as *FetchError.
	FetchPage(ctx context.Context, url string) (string, error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc func(ctx context.Context, url string) (string, error)

// FetchPage calls f.
func (f FetchFunc) FetchPage(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// FetchError reports a failed page retrieval: a network error, a timeout, a
// non-success status or a block page.
type FetchError struct {
	URL        string
	StatusCode int
	Block      BlockType
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Block != BlockNone:
		return fmt.Sprintf("fetch %s: blocked (%s)", e.URL, e.Block)
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same URL later may succeed.
func (e *FetchError) Temporary() bool {
	if e.StatusCode != 0 {
		return resilience.IsTransientHTTPStatus(e.StatusCode)
	}
	if e.Block != BlockNone {
		return true
	}
	return e.Err != nil && resilience.IsTransient(e.Err)
}
