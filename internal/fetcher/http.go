package fetcher

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/jerrybase-cli/internal/resilience"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 8 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxAttempts is the number of tries per page within one call. 1 disables
	// in-run retries.
	MaxAttempts int
	// RatePerSecond caps requests per host across all callers. 0 disables the cap.
	RatePerSecond float64
}

// HTTPFetcher implements PageFetcher using net/http with an optional per-host
// rate limit and in-run retries of transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "jerrybase-cli/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// FetchPage retrieves rawURL, retrying transient failures up to MaxAttempts.
func (f *HTTPFetcher) FetchPage(ctx context.Context, rawURL string) (string, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts: f.opts.MaxAttempts,
		OnRetry:     resilience.RetryLogger(rawURL),
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return f.fetchOnce(ctx, rawURL)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	if lim := f.limiterFor(rawURL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", &FetchError{URL: rawURL, Err: eris.Wrap(err, "rate limiter wait")}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: eris.Wrap(err, "read body")}
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		zap.L().Warn("block page detected",
			zap.String("url", rawURL),
			zap.String("block", string(kind)),
		)
		return "", &FetchError{URL: rawURL, Block: kind}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	text, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	return text, nil
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	if f.opts.RatePerSecond <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		burst := int(f.opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(f.opts.RatePerSecond), burst)
		f.limiters[host] = lim
	}
	return lim
}

// decodeBody converts body to UTF-8 using the charset named in contentType.
func decodeBody(body []byte, contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "unsupported charset %q", charset)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "decode %s body", charset)
	}
	return string(decoded), nil
}
