// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package netfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func testDownloader() *HTTPDownloader {
	return NewHTTPDownloader(DownloaderConfig{
		Timeout:      5 * time.Second,
		Retries:      3,
		RetryBackoff: 10 * time.Millisecond,
	})
}

func TestFetch_WritesFile(t *testing.T) {
	payload := []byte("runtime archive bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "python.zip")
	if err := testDownloader().Fetch(context.Background(), "runtime", server.URL, dest, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("destination not written: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("partial file left behind")
	}
}

func TestFetch_ReportsProgress(t *testing.T) {
	payload := make([]byte, 300*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	var lastReceived, lastTotal int64
	var calls int
	onProgress := func(received, total int64) {
		lastReceived = received
		lastTotal = total
		calls++
	}

	dest := filepath.Join(t.TempDir(), "python.zip")
	if err := testDownloader().Fetch(context.Background(), "runtime", server.URL, dest, onProgress); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if calls < 2 {
		t.Errorf("expected multiple progress callbacks for a multi-chunk body, got %d", calls)
	}
	if lastReceived != int64(len(payload)) {
		t.Errorf("final received = %d, want %d", lastReceived, len(payload))
	}
	if lastTotal != int64(len(payload)) {
		t.Errorf("total = %d, want %d", lastTotal, len(payload))
	}
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "python.zip")
	if err := testDownloader().Fetch(context.Background(), "runtime", server.URL, dest, nil); err != nil {
		t.Fatalf("expected success on third attempt, got: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "python.zip")
	err := testDownloader().Fetch(context.Background(), "runtime", server.URL, dest, nil)
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected *DownloadError, got %T", err)
	}
	if dlErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", dlErr.Attempts)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Errorf("failed download must not leave a destination file")
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "python.zip")
	err := testDownloader().Fetch(ctx, "runtime", server.URL, dest, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
