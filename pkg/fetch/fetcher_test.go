package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testClient() *http.Client {
	return NewClient(config.HTTPClientConfig{Timeout: 5 * time.Second}, testLogger())
}

// mockServer returns status codes in sequence, repeating the last one.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attempts.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attempts
}

func TestFetchWithRetry_Success(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusOK})
	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_RetriesServerErrors(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK})
	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchWithRetry_ExhaustsRetries(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusBadGateway})
	fetcher := NewFetcher(testClient(), testPolicy(2), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := fetcher.FetchWithRetry(req, context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.ErrorIs(t, err, utils.ErrServerHTTPError)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchWithRetry_NoRetryIsSingleAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusInternalServerError, http.StatusOK})
	fetcher := NewFetcher(testClient(), NoRetry, testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := fetcher.FetchWithRetry(req, context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_ClientErrorNotRetried(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusNotFound})
	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrClientHTTPError)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_CancelledContext(t *testing.T) {
	server, _ := mockServer(t, []int{http.StatusOK})
	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fetcher.FetchWithRetry(req, ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetBody(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer server.Close()
	fetcher := NewFetcher(testClient(), NoRetry, testLogger())

	body, err := GetBody(context.Background(), fetcher, server.URL, "scanner-test", 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
	assert.Equal(t, "scanner-test", gotUA)

	body, err = GetBody(context.Background(), fetcher, server.URL, "", 0)
	require.NoError(t, err)
	assert.Len(t, body, 10)
}

func TestBackoffDelay_CappedWithJitter(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	for i := 0; i < 20; i++ {
		d := backoffDelay(p, 5)
		assert.GreaterOrEqual(t, d, 270*time.Millisecond)
		assert.LessOrEqual(t, d, 330*time.Millisecond)
	}
	assert.Zero(t, backoffDelay(RetryPolicy{}, 1))
}

func TestRateLimiter_ApplyDelay(t *testing.T) {
	rl := NewRateLimiter(0, testLogger())
	start := time.Now()
	require.NoError(t, rl.ApplyDelay(context.Background(), "a.test", 50*time.Millisecond))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first request to a host never waits")

	rl.UpdateLastRequestTime("a.test")
	start = time.Now()
	require.NoError(t, rl.ApplyDelay(context.Background(), "a.test", 50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	rl.UpdateLastRequestTime("a.test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.ApplyDelay(ctx, "a.test", time.Second), context.Canceled)
}

func TestHostSemaphorePool_LimitsPerHost(t *testing.T) {
	pool := NewHostSemaphorePool(1, testLogger())
	require.NoError(t, pool.Acquire(context.Background(), "h"))
	assert.Equal(t, 1, pool.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Acquire(ctx, "h")
	require.Error(t, err, "second permit must block")
	assert.ErrorIs(t, err, utils.ErrSemaphoreTimeout)

	require.NoError(t, pool.Acquire(context.Background(), "other"))
	pool.Release("other")
	pool.Release("h")
	assert.Equal(t, 0, pool.Len())
}

func TestRobotsHandler_SitemapDirectives(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nSitemap: https://example.com/sitemap_index.xml\nSitemap: https://example.com/news.xml\n"))
	}))
	defer server.Close()

	fetcher := NewFetcher(testClient(), NoRetry, testLogger())
	rh := NewRobotsHandler(fetcher, nil, "scanner-test", 0, testLogger())
	target, _ := http.NewRequest(http.MethodGet, server.URL+"/page", nil)

	got := rh.SitemapDirectives(context.Background(), target.URL)
	assert.Equal(t, []string{"https://example.com/sitemap_index.xml", "https://example.com/news.xml"}, got)
	_ = rh.SitemapDirectives(context.Background(), target.URL)
	assert.Equal(t, int32(1), hits.Load(), "robots.txt is cached per host")
}

func TestRobotsHandler_MissingRobots(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	fetcher := NewFetcher(testClient(), NoRetry, testLogger())
	rh := NewRobotsHandler(fetcher, NewRateLimiter(0, testLogger()), "", 0, testLogger())
	target, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	assert.Empty(t, rh.SitemapDirectives(context.Background(), target.URL))
}

func TestRobotsHandler_FailureNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nSitemap: https://example.com/sitemap.xml\n"))
	}))
	defer server.Close()

	fetcher := NewFetcher(testClient(), NoRetry, testLogger())
	rh := NewRobotsHandler(fetcher, nil, "", 0, testLogger())
	target, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	assert.Empty(t, rh.SitemapDirectives(context.Background(), target.URL))
	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, rh.SitemapDirectives(context.Background(), target.URL))
	assert.Equal(t, int32(2), hits.Load())
}

func TestRobotsHandler_EntriesExpire(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nSitemap: https://example.com/sitemap.xml\n"))
	}))
	defer server.Close()

	fetcher := NewFetcher(testClient(), NoRetry, testLogger())
	rh := NewRobotsHandler(fetcher, nil, "", 0, testLogger())
	clock := time.Now()
	rh.now = func() time.Time { return clock }
	target, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	rh.SitemapDirectives(context.Background(), target.URL)
	clock = clock.Add(DefaultRobotsTTL - time.Second)
	rh.SitemapDirectives(context.Background(), target.URL)
	assert.Equal(t, int32(1), hits.Load(), "fresh entry is reused")

	clock = clock.Add(2 * time.Second)
	rh.SitemapDirectives(context.Background(), target.URL)
	assert.Equal(t, int32(2), hits.Load(), "stale entry is refetched")
}
