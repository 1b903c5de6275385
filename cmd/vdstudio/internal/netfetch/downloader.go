// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package netfetch downloads mirror artifacts (runtime archives, bootstrap
scripts) to local files.

Downloads stream in fixed-size chunks so that progress can be reported and
cancellation observed between chunks. The whole transfer is retried with a
fixed backoff; a retry restarts from byte zero because the Python mirrors
involved do not reliably support range requests. An optional token-bucket
rate limit caps bandwidth so a runtime download does not starve whatever
else the workstation is doing.
*/
package netfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/metrics"
)

const (
	// DefaultTimeout bounds a whole download attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the number of attempts before giving up.
	DefaultRetries = 3

	// DefaultRetryBackoff is the fixed wait between attempts.
	DefaultRetryBackoff = 2 * time.Second

	// chunkSize is the copy granularity; progress and cancellation are
	// checked once per chunk.
	chunkSize = 128 * 1024
)

// DownloadError describes a download that failed after all retries.
type DownloadError struct {
	// URL is the source that failed.
	URL string

	// Attempts is how many tries were made.
	Attempts int

	// Wrapped is the last attempt's error.
	Wrapped error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Wrapped)
}

// Unwrap returns the last attempt's error.
func (e *DownloadError) Unwrap() error {
	return e.Wrapped
}

// TransferProgress reports bytes received so far. total is -1 when the
// server does not send Content-Length.
type TransferProgress func(received, total int64)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// FileDownloader fetches a URL into a local file.
//
// Implementations must be safe for concurrent use; distinct artifacts are
// downloaded in parallel when several environments are prepared at once.
type FileDownloader interface {
	// Fetch downloads url into dest, creating parent directories as
	// needed. kind labels the artifact for metrics ("runtime", "get-pip").
	// onProgress may be nil.
	Fetch(ctx context.Context, kind, url, dest string, onProgress TransferProgress) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DownloaderConfig configures retry and bandwidth behavior.
type DownloaderConfig struct {
	// Timeout bounds each attempt. Default: DefaultTimeout.
	Timeout time.Duration

	// Retries is the attempt count. Default: DefaultRetries.
	Retries int

	// RetryBackoff is the fixed wait between attempts.
	// Default: DefaultRetryBackoff.
	RetryBackoff time.Duration

	// BytesPerSecond caps transfer bandwidth. 0 means unlimited.
	BytesPerSecond int
}

// HTTPDownloader implements FileDownloader over net/http.
type HTTPDownloader struct {
	config  DownloaderConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPDownloader creates a downloader with the given retry/bandwidth
// configuration. Zero config fields fall back to package defaults.
func NewHTTPDownloader(config DownloaderConfig) *HTTPDownloader {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Retries <= 0 {
		config.Retries = DefaultRetries
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}

	var limiter *rate.Limiter
	if config.BytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.BytesPerSecond), chunkSize)
	}

	return &HTTPDownloader{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
	}
}

// Fetch downloads url into dest with retries.
//
// # Description
//
// Each attempt streams into dest + ".part" and renames into place only on
// success, so an interrupted transfer never leaves a truncated file at the
// destination path. Between attempts the downloader waits a fixed backoff;
// context cancellation is honored during the wait and between chunks.
//
// # Outputs
//
//   - error: *DownloadError after retry exhaustion; ctx.Err() if cancelled
func (d *HTTPDownloader) Fetch(ctx context.Context, kind, url, dest string, onProgress TransferProgress) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < d.config.Retries; attempt++ {
		if attempt > 0 {
			metrics.RecordDownloadRetry(kind)
			slog.Warn("Retrying download", "url", url, "attempt", attempt+1, "retries", d.config.Retries)
			select {
			case <-ctx.Done():
				metrics.RecordDownload(kind, false, 0)
				return ctx.Err()
			case <-time.After(d.config.RetryBackoff):
			}
		}

		written, err := d.fetchOnce(ctx, url, dest, onProgress)
		if err == nil {
			metrics.RecordDownload(kind, true, written)
			return nil
		}
		if ctx.Err() != nil {
			metrics.RecordDownload(kind, false, 0)
			return ctx.Err()
		}
		lastErr = err
		slog.Debug("Download attempt failed", "url", url, "error", err)
	}

	metrics.RecordDownload(kind, false, 0)
	return &DownloadError{URL: url, Attempts: d.config.Retries, Wrapped: lastErr}
}

// fetchOnce performs a single streaming attempt into dest + ".part".
func (d *HTTPDownloader) fetchOnce(ctx context.Context, url, dest string, onProgress TransferProgress) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	partPath := dest + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return 0, err
	}

	written, err := d.copyChunks(ctx, out, resp.Body, resp.ContentLength, onProgress)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		return 0, err
	}

	if err := os.Rename(partPath, dest); err != nil {
		os.Remove(partPath)
		return 0, err
	}
	return written, nil
}

// copyChunks streams src to dst, checking cancellation and reporting
// progress once per chunk.
func (d *HTTPDownloader) copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress TransferProgress) (int64, error) {
	if total == 0 {
		total = -1
	}

	buf := make([]byte, chunkSize)
	var received int64
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, n); err != nil {
					return received, err
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return received, err
			}
			received += int64(n)
			if onProgress != nil {
				onProgress(received, total)
			}
		}
		if readErr == io.EOF {
			return received, nil
		}
		if readErr != nil {
			return received, readErr
		}
	}
}

// Compile-time interface compliance check.
var _ FileDownloader = (*HTTPDownloader)(nil)
