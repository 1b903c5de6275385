// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"
	"testing"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/envmgr"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/netprobe"
)

func TestFullError_UsesDetailedForm(t *testing.T) {
	err := &envmgr.EnvironmentNotReadyError{Name: "yolov5-cuda"}
	got := fullError(err)
	if !strings.Contains(got, "vdstudio env prepare yolov5-cuda") {
		t.Errorf("fullError = %q, want remediation guidance", got)
	}
}

func TestFullError_UnwrapsToDetailedForm(t *testing.T) {
	wrapped := fmt.Errorf("prepare failed: %w", &envmgr.ProvisionInProgressError{Name: "yolov8-rocm"})
	got := fullError(wrapped)
	if !strings.Contains(got, "already being prepared") {
		t.Errorf("fullError = %q, want the wrapped detailed message", got)
	}
}

func TestFullError_PlainErrorFallsBack(t *testing.T) {
	err := fmt.Errorf("plain failure")
	if got := fullError(err); got != "plain failure" {
		t.Errorf("fullError = %q", got)
	}
}

func TestRegionProbe_FlagOverrides(t *testing.T) {
	defer func() { regionFlag = "auto" }()

	regionFlag = "mainland"
	probe, ok := regionProbe().(*netprobe.StaticRegionProbe)
	if !ok || probe.Region != netprobe.RegionMainland {
		t.Errorf("--region mainland must force a static mainland probe")
	}

	regionFlag = "global"
	probe, ok = regionProbe().(*netprobe.StaticRegionProbe)
	if !ok || probe.Region != netprobe.RegionGlobal {
		t.Errorf("--region global must force a static global probe")
	}

	regionFlag = "auto"
	if _, ok := regionProbe().(*netprobe.DefaultRegionProbe); !ok {
		t.Errorf("--region auto must probe the network")
	}
}
