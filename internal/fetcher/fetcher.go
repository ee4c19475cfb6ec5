// internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/maven"
)

const (
	// DefaultTimeout bounds a whole fetch: every attempt, the waits between them and the body transfer.
	DefaultTimeout = 300 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2
	// DefaultRetryInterval is the constant wait between attempts.
	DefaultRetryInterval = 500 * time.Millisecond

	maxPropertiesSize = 1 << 20
)

// Options configures a Fetcher. Zero durations and a negative MaxRetries fall back to the defaults.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	UserAgent     string
}

// Fetcher downloads repository index files over HTTP.
type Fetcher struct {
	client        *http.Client
	logger        *slog.Logger
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	userAgent     string
}

// New creates a Fetcher. Redirects are followed by the underlying http.Client.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "maven-indexer"
	}

	return &Fetcher{
		client:        &http.Client{},
		logger:        logger,
		timeout:       opts.Timeout,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
		userAgent:     opts.UserAgent,
	}
}

// FetchIndex downloads url and writes the body byte-for-byte to destPath.
// It returns the number of bytes written.
func (f *Fetcher) FetchIndex(ctx context.Context, url, destPath string) (int64, error) {
	f.logger.Info("Downloading index", "url", url, "dest", destPath)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create index file: %w", err)
	}

	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return n, &custom_errors.ConnectionError{URL: url, Err: copyErr}
	}
	if closeErr != nil {
		return n, fmt.Errorf("write index file: %w", closeErr)
	}

	f.logger.Info("Index downloaded", "url", url, "bytes", n)
	return n, nil
}

// FetchProperties downloads and parses the index properties descriptor.
func (f *Fetcher) FetchProperties(ctx context.Context, url string) (*maven.IndexProperties, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPropertiesSize))
	if err != nil {
		return nil, &custom_errors.ConnectionError{URL: url, Err: err}
	}
	return maven.ParseProperties(data)
}

// get performs a GET with the retry policy. The caller owns the returned body.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			f.logger.Warn("Index request failed", "url", url, "attempt", attempt, "error", err)
			return nil, &custom_errors.ConnectionError{URL: url, Err: err}
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		statusErr := &custom_errors.DownloadError{URL: url, StatusCode: resp.StatusCode}
		if !isTransientStatus(resp.StatusCode) {
			return nil, backoff.Permanent(statusErr)
		}
		f.logger.Warn("Index request returned transient status", "url", url, "attempt", attempt, "status", resp.StatusCode)
		return nil, statusErr
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.retryInterval)),
		backoff.WithMaxTries(uint(f.maxRetries+1)),
	)
	if err != nil {
		return nil, classify(url, err)
	}
	return resp, nil
}

// classify makes sure every failure leaving the fetcher is a DownloadError or a ConnectionError.
func classify(url string, err error) error {
	var downloadErr *custom_errors.DownloadError
	if errors.As(err, &downloadErr) {
		return downloadErr
	}
	var connErr *custom_errors.ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}
	return &custom_errors.ConnectionError{URL: url, Err: err}
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
