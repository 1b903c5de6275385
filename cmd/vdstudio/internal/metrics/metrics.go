// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exposes Prometheus instrumentation for the provisioning
// pipeline. Metrics are process-local; `vdstudio env prepare --metrics-dump`
// prints them on exit for scraping-free inspection.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// =============================================================================
// Prometheus Metrics for Environment Provisioning
// =============================================================================

var (
	// downloadTotal counts mirror downloads by artifact kind and outcome.
	// Labels: kind (runtime, get-pip), status (success, error)
	downloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vdstudio",
		Subsystem: "download",
		Name:      "total",
		Help:      "Total mirror downloads by artifact kind and status",
	}, []string{"kind", "status"})

	// downloadRetries counts retry attempts beyond the first try.
	// Labels: kind
	downloadRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vdstudio",
		Subsystem: "download",
		Name:      "retries_total",
		Help:      "Total download retry attempts",
	}, []string{"kind"})

	// downloadBytes observes downloaded artifact sizes.
	// Labels: kind
	downloadBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vdstudio",
		Subsystem: "download",
		Name:      "bytes",
		Help:      "Downloaded artifact size in bytes",
		Buckets:   prometheus.ExponentialBuckets(1024, 8, 8),
	}, []string{"kind"})

	// packageInstalls counts pip installs by outcome.
	// Labels: status (success, error, skipped)
	packageInstalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vdstudio",
		Subsystem: "pip",
		Name:      "installs_total",
		Help:      "Total package install attempts by status",
	}, []string{"status"})

	// stageDuration observes provision stage wall time.
	// Labels: stage (probe, runtime, venv, install), status (success, error)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vdstudio",
		Subsystem: "provision",
		Name:      "stage_duration_seconds",
		Help:      "Provision stage duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage", "status"})

	// provisionTotal counts full prepare runs by outcome.
	// Labels: status (success, error, rejected)
	provisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vdstudio",
		Subsystem: "provision",
		Name:      "total",
		Help:      "Total environment preparation runs by status",
	}, []string{"status"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordDownload records a finished download attempt.
//
// Inputs:
//
//	kind - Artifact kind ("runtime", "get-pip").
//	success - Whether the download completed.
//	bytes - Bytes written (0 on failure).
func RecordDownload(kind string, success bool, bytes int64) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadTotal.WithLabelValues(kind, status).Inc()
	if success && bytes > 0 {
		downloadBytes.WithLabelValues(kind).Observe(float64(bytes))
	}
}

// RecordDownloadRetry records one retry beyond the first attempt.
func RecordDownloadRetry(kind string) {
	downloadRetries.WithLabelValues(kind).Inc()
}

// RecordPackageInstall records a pip install attempt.
//
// Inputs:
//
//	status - "success", "error", or "skipped".
func RecordPackageInstall(status string) {
	packageInstalls.WithLabelValues(status).Inc()
}

// RecordStageDuration records a provision stage's wall time.
//
// Inputs:
//
//	stage - "probe", "runtime", "venv", or "install".
//	success - Whether the stage completed.
//	seconds - Duration in seconds.
func RecordStageDuration(stage string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	stageDuration.WithLabelValues(stage, status).Observe(seconds)
}

// RecordProvision records the outcome of a full prepare run.
//
// Inputs:
//
//	status - "success", "error", or "rejected" (concurrent duplicate).
func RecordProvision(status string) {
	provisionTotal.WithLabelValues(status).Inc()
}

// DumpText writes the process metrics in Prometheus text exposition format.
// Used by the CLI's --metrics-dump flag; there is no scrape endpoint in a
// short-lived CLI process.
func DumpText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
