// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package netprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegion_String(t *testing.T) {
	tests := []struct {
		region Region
		want   string
	}{
		{RegionGlobal, "global"},
		{RegionMainland, "mainland"},
		{Region(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.region.String(); got != tt.want {
			t.Errorf("Region(%d).String() = %q, want %q", tt.region, got, tt.want)
		}
	}
}

func TestProbe_GlobalReachable(t *testing.T) {
	global := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer global.Close()

	probe := NewDefaultRegionProbe(ProbeConfig{
		GlobalEndpoint:   global.URL,
		MainlandEndpoint: "http://127.0.0.1:1", // unreachable
		Timeout:          time.Second,
	})

	if got := probe.Probe(context.Background()); got != RegionGlobal {
		t.Errorf("expected RegionGlobal, got %v", got)
	}
}

func TestProbe_MainlandFallback(t *testing.T) {
	mainland := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer mainland.Close()

	probe := NewDefaultRegionProbe(ProbeConfig{
		GlobalEndpoint:   "http://127.0.0.1:1",
		MainlandEndpoint: mainland.URL,
		Timeout:          time.Second,
	})

	if got := probe.Probe(context.Background()); got != RegionMainland {
		t.Errorf("expected RegionMainland, got %v", got)
	}
}

func TestProbe_BothUnreachableFailsOpen(t *testing.T) {
	probe := NewDefaultRegionProbe(ProbeConfig{
		GlobalEndpoint:   "http://127.0.0.1:1",
		MainlandEndpoint: "http://127.0.0.1:1",
		Timeout:          200 * time.Millisecond,
	})

	if got := probe.Probe(context.Background()); got != RegionGlobal {
		t.Errorf("expected fail-open RegionGlobal, got %v", got)
	}
}

func TestProbe_ErrorStatusStillCountsAsReachable(t *testing.T) {
	global := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer global.Close()

	probe := NewDefaultRegionProbe(ProbeConfig{
		GlobalEndpoint:   global.URL,
		MainlandEndpoint: "http://127.0.0.1:1",
		Timeout:          time.Second,
	})

	if got := probe.Probe(context.Background()); got != RegionGlobal {
		t.Errorf("a 503 answer still proves reachability, got %v", got)
	}
}

func TestProbe_ResultCachedAcrossCalls(t *testing.T) {
	var hits atomic.Int32
	global := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer global.Close()

	probe := NewDefaultRegionProbe(ProbeConfig{
		GlobalEndpoint:   global.URL,
		MainlandEndpoint: "http://127.0.0.1:1",
		Timeout:          time.Second,
	})

	for i := 0; i < 5; i++ {
		probe.Probe(context.Background())
	}

	if hits.Load() != 1 {
		t.Errorf("expected exactly 1 network probe, got %d", hits.Load())
	}
}

func TestStaticRegionProbe(t *testing.T) {
	probe := &StaticRegionProbe{Region: RegionMainland}
	if got := probe.Probe(context.Background()); got != RegionMainland {
		t.Errorf("expected RegionMainland, got %v", got)
	}
}
