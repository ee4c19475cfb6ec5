// internal/fetcher/fetcher_test.go
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "maven-indexer/internal/errors"
)

func newTestFetcher() *Fetcher {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(Options{Timeout: 5 * time.Second, MaxRetries: DefaultMaxRetries, RetryInterval: 10 * time.Millisecond}, logger)
}

func TestFetcher_FetchIndex(t *testing.T) {
	t.Run("writes the body to the destination", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			assert.Equal(t, "/.index/nexus-maven-repository-index.gz", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "X")
		})
		server := httptest.NewServer(handler)
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "nexus-maven-repository-index.gz")
		n, err := newTestFetcher().FetchIndex(context.Background(), server.URL+"/.index/nexus-maven-repository-index.gz", dest)

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		body, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "X", string(body))
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
	})

	t.Run("follows redirects", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new", http.StatusFound)
		})
		mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "redirected")
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "index.gz")
		_, err := newTestFetcher().FetchIndex(context.Background(), server.URL+"/old", dest)

		require.NoError(t, err)
		body, _ := os.ReadFile(dest)
		assert.Equal(t, "redirected", string(body))
	})

	t.Run("retries on 503 server error and succeeds", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requestCount, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "ok")
		})
		server := httptest.NewServer(handler)
		defer server.Close()

		_, err := newTestFetcher().FetchIndex(context.Background(), server.URL, filepath.Join(t.TempDir(), "index.gz"))

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount), "should have made two requests")
	})

	t.Run("gives up after two retries on persistent server error", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusBadGateway)
		})
		server := httptest.NewServer(handler)
		defer server.Close()

		_, err := newTestFetcher().FetchIndex(context.Background(), server.URL, filepath.Join(t.TempDir(), "index.gz"))

		var downloadErr *custom_errors.DownloadError
		require.ErrorAs(t, err, &downloadErr)
		assert.Equal(t, http.StatusBadGateway, downloadErr.StatusCode)
		assert.Equal(t, int32(DefaultMaxRetries+1), atomic.LoadInt32(&requestCount))
	})

	t.Run("does not retry a 404", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusNotFound)
		})
		server := httptest.NewServer(handler)
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "index.gz")
		_, err := newTestFetcher().FetchIndex(context.Background(), server.URL, dest)

		var downloadErr *custom_errors.DownloadError
		require.ErrorAs(t, err, &downloadErr)
		assert.Equal(t, http.StatusNotFound, downloadErr.StatusCode)
		assert.Contains(t, err.Error(), "404")
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
		assert.NoFileExists(t, dest)
	})

	t.Run("unreachable server is a connection error", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := newTestFetcher().FetchIndex(context.Background(), url, filepath.Join(t.TempDir(), "index.gz"))

		var connErr *custom_errors.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, url, connErr.URL)
	})

	t.Run("request timeout is a connection error", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})
		server := httptest.NewServer(handler)
		defer server.Close()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		f := New(Options{Timeout: 20 * time.Millisecond, MaxRetries: 0, RetryInterval: time.Millisecond}, logger)
		_, err := f.FetchIndex(context.Background(), server.URL, filepath.Join(t.TempDir(), "index.gz"))

		var connErr *custom_errors.ConnectionError
		require.ErrorAs(t, err, &connErr)
	})

	t.Run("timeout covers every retry", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			time.Sleep(60 * time.Millisecond)
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		server := httptest.NewServer(handler)
		defer server.Close()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		f := New(Options{Timeout: 100 * time.Millisecond, MaxRetries: 10, RetryInterval: 10 * time.Millisecond}, logger)
		started := time.Now()
		_, err := f.FetchIndex(context.Background(), server.URL, filepath.Join(t.TempDir(), "index.gz"))

		var connErr *custom_errors.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.LessOrEqual(t, atomic.LoadInt32(&requestCount), int32(2))
		assert.Less(t, time.Since(started), time.Second)
	})
}

func TestFetcher_FetchProperties(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "nexus.index.chain-id=42\nnexus.index.timestamp=20251121100000.000 +0000\n")
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	props, err := newTestFetcher().FetchProperties(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "42", props.ChainID)
	assert.Equal(t, "20251121100000.000 +0000", props.Timestamp)
}
