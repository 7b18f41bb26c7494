package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/jerrybase-cli/internal/resilience"
)

func newTestFetcher(attempts int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     2 * time.Second,
		MaxAttempts: attempts,
	})
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><title>1975-08-13 Jerry Garcia Band</title></html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(1).FetchPage(context.Background(), srv.URL+"/events/1")
	require.NoError(t, err)
	assert.Contains(t, body, "Jerry Garcia Band")
}

func TestFetchPage_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(3).FetchPage(context.Background(), srv.URL+"/events/404")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.False(t, resilience.IsTransient(err))
}

func TestFetchPage_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(2).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPage_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(HTTPOptions{}).FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPage_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestFetcher(1).FetchPage(ctx, srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestFetchPage_BlockPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="g-recaptcha"></div></body></html>`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(1).FetchPage(context.Background(), srv.URL)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, BlockCaptcha, fe.Block)
}

func TestFetchPage_DecodesCharset(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("Café Oscar")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		w.Write([]byte(latin1))
	}))
	defer srv.Close()

	body, err := newTestFetcher(1).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Café Oscar", body)
}

func TestFetchPage_RateLimitPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RatePerSecond: 20})
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.FetchPage(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	// Burst of 20 allows the first call immediately; the limiter is shared per host.
	assert.Len(t, f.limiters, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetectBlock(t *testing.T) {
	blocked, kind := DetectBlock(&http.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{"Cf-Ray": {"abc123"}},
	}, nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)

	blocked, _ = DetectBlock(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}}, []byte("<html>setlist</html>"))
	assert.False(t, blocked)

	blocked, _ = DetectBlock(nil, nil)
	assert.False(t, blocked)
}

func TestFetchFunc(t *testing.T) {
	var f PageFetcher = FetchFunc(func(_ context.Context, url string) (string, error) {
		return "page:" + url, nil
	})
	body, err := f.FetchPage(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "page:u", body)
}
