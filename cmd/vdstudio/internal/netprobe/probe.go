// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package netprobe classifies the local network as mainland-China-like or
global so the provisioner can pick reachable mirrors by default.

The heuristic is deliberately crude: if a well-known global endpoint answers
within a short timeout the network is global; otherwise, if a well-known
mainland endpoint answers, it is mainland; otherwise fail open to global,
which selects the broader mirror set. The result is computed once per
process and cached — mirror choice mid-session would invalidate partially
downloaded state for no benefit.
*/
package netprobe

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Region classifies the local network for mirror selection.
type Region int

const (
	// RegionGlobal selects the official python.org / pypi.org sources.
	RegionGlobal Region = iota

	// RegionMainland selects mainland-China mirror sources.
	RegionMainland
)

// String returns the region as a human-readable string.
func (r Region) String() string {
	switch r {
	case RegionGlobal:
		return "global"
	case RegionMainland:
		return "mainland"
	default:
		return "unknown"
	}
}

const (
	// DefaultGlobalEndpoint is the reachability reference for global networks.
	DefaultGlobalEndpoint = "https://www.google.com"

	// DefaultMainlandEndpoint is the reachability reference for mainland networks.
	DefaultMainlandEndpoint = "https://www.baidu.com"

	// DefaultProbeTimeout bounds each reachability attempt.
	DefaultProbeTimeout = 3 * time.Second
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// RegionProbe determines which mirror region the process should prefer.
//
// Implementations must never return an error: reachability failure is an
// expected condition, not a fault, and the answer in that case is
// RegionGlobal.
type RegionProbe interface {
	// Probe returns the cached region, computing it on first call.
	Probe(ctx context.Context) Region
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// ProbeConfig configures endpoint URLs and the per-attempt timeout.
type ProbeConfig struct {
	// GlobalEndpoint is checked first. Default: DefaultGlobalEndpoint.
	GlobalEndpoint string

	// MainlandEndpoint is checked if the global endpoint is unreachable.
	// Default: DefaultMainlandEndpoint.
	MainlandEndpoint string

	// Timeout bounds each reachability attempt. Default: DefaultProbeTimeout.
	Timeout time.Duration
}

// DefaultRegionProbe implements RegionProbe with real HTTP reachability
// checks, cached for the process lifetime.
type DefaultRegionProbe struct {
	config ProbeConfig
	client *http.Client

	once   sync.Once
	cached Region
}

// NewDefaultRegionProbe creates a probe with real network checks.
//
// # Inputs
//
//   - config: Endpoint/timeout overrides; zero values use defaults
func NewDefaultRegionProbe(config ProbeConfig) *DefaultRegionProbe {
	if config.GlobalEndpoint == "" {
		config.GlobalEndpoint = DefaultGlobalEndpoint
	}
	if config.MainlandEndpoint == "" {
		config.MainlandEndpoint = DefaultMainlandEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}

	return &DefaultRegionProbe{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Probe returns the cached region, computing it on first call.
//
// # Description
//
// Issues a HEAD request against the global endpoint; on success the region
// is global. On failure the mainland endpoint is tried; on success the
// region is mainland. If both fail the region defaults to global. Network
// errors are swallowed — this method never fails.
func (p *DefaultRegionProbe) Probe(ctx context.Context) Region {
	p.once.Do(func() {
		p.cached = p.classify(ctx)
		slog.Info("Network region detected", "region", p.cached.String())
	})
	return p.cached
}

func (p *DefaultRegionProbe) classify(ctx context.Context) Region {
	if p.reachable(ctx, p.config.GlobalEndpoint) {
		return RegionGlobal
	}
	if p.reachable(ctx, p.config.MainlandEndpoint) {
		return RegionMainland
	}
	// Fail open toward the broader mirror set.
	return RegionGlobal
}

func (p *DefaultRegionProbe) reachable(ctx context.Context, url string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("Reachability check failed", "url", url, "error", err)
		return false
	}
	resp.Body.Close()
	// Any HTTP answer proves reachability, including 4xx/5xx.
	return true
}

// -----------------------------------------------------------------------------
// Static Implementation for Testing and Overrides
// -----------------------------------------------------------------------------

// StaticRegionProbe always reports a fixed region. Used by tests and by the
// --region CLI override.
type StaticRegionProbe struct {
	Region Region
}

// Probe returns the fixed region.
func (p *StaticRegionProbe) Probe(ctx context.Context) Region {
	return p.Region
}

// Compile-time interface compliance check.
var (
	_ RegionProbe = (*DefaultRegionProbe)(nil)
	_ RegionProbe = (*StaticRegionProbe)(nil)
)
