// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package hardware detects installed GPUs and recommends a matching
environment.

Detection is tiered: vendor tooling first (nvidia-smi gives name, memory
and driver in one call), then a generic per-OS controller scan (lspci,
wmic, system_profiler) classified by vendor substring. Every probe is
best-effort; a workstation with no GPU tooling at all simply detects
nothing and gets the CPU recommendation.
*/
package hardware

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
)

// Vendor identifies a GPU vendor family.
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorNVIDIA
	VendorAMD
	VendorIntel
)

// String returns the vendor as a human-readable string.
func (v Vendor) String() string {
	switch v {
	case VendorNVIDIA:
		return "nvidia"
	case VendorAMD:
		return "amd"
	case VendorIntel:
		return "intel"
	default:
		return "unknown"
	}
}

// GPUDevice describes one detected graphics device.
type GPUDevice struct {
	// Vendor is the classified vendor family.
	Vendor Vendor

	// Name is the device name as reported by the detection tool.
	Name string

	// Memory is the total memory string when available ("24576 MiB").
	Memory string

	// Driver is the driver version when available.
	Driver string
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Probe detects graphics hardware.
type Probe interface {
	// DetectGPUs returns the detected devices. Detection never fails; an
	// empty slice means no GPU was found or no tooling was available.
	DetectGPUs(ctx context.Context) []GPUDevice
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProbe implements Probe via vendor and OS tooling.
type DefaultProbe struct {
	procs procmgr.ProcessManager

	// goos selects the generic scan tool; overridden only in tests.
	goos string
}

// NewDefaultProbe creates a probe backed by real subprocess calls.
func NewDefaultProbe(procs procmgr.ProcessManager) *DefaultProbe {
	return &DefaultProbe{procs: procs, goos: runtime.GOOS}
}

// DetectGPUs returns the detected devices, preferring vendor tooling.
func (p *DefaultProbe) DetectGPUs(ctx context.Context) []GPUDevice {
	if devices := p.detectNVIDIA(ctx); len(devices) > 0 {
		return devices
	}
	return p.detectGeneric(ctx)
}

// detectNVIDIA queries nvidia-smi. Absence of the tool means absence of a
// usable NVIDIA stack, tool errors included.
func (p *DefaultProbe) detectNVIDIA(ctx context.Context) []GPUDevice {
	if _, ok := p.procs.LookPath("nvidia-smi"); !ok {
		return nil
	}

	out, err := p.procs.Run(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,driver_version", "--format=csv,noheader")
	if err != nil {
		slog.Debug("nvidia-smi failed", "error", err)
		return nil
	}

	var devices []GPUDevice
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 1 || strings.TrimSpace(fields[0]) == "" {
			continue
		}
		device := GPUDevice{Vendor: VendorNVIDIA, Name: strings.TrimSpace(fields[0])}
		if len(fields) > 1 {
			device.Memory = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			device.Driver = strings.TrimSpace(fields[2])
		}
		devices = append(devices, device)
	}
	return devices
}

// detectGeneric lists display controllers with the OS inventory tool and
// classifies them by vendor substring.
func (p *DefaultProbe) detectGeneric(ctx context.Context) []GPUDevice {
	var out []byte
	var err error

	switch p.goos {
	case "windows":
		out, err = p.procs.Run(ctx, "wmic", "path", "win32_VideoController", "get", "name")
	case "darwin":
		out, err = p.procs.Run(ctx, "system_profiler", "SPDisplaysDataType")
	default:
		out, err = p.procs.Run(ctx, "lspci")
	}
	if err != nil {
		slog.Debug("Generic GPU scan failed", "goos", p.goos, "error", err)
		return nil
	}

	var devices []GPUDevice
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p.goos == "linux" && !isDisplayController(line) {
			continue
		}
		vendor := classifyVendor(line)
		if vendor == VendorUnknown {
			continue
		}
		devices = append(devices, GPUDevice{Vendor: vendor, Name: line})
	}
	return devices
}

// isDisplayController filters lspci output to graphics devices.
func isDisplayController(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "vga compatible controller") ||
		strings.Contains(lower, "3d controller") ||
		strings.Contains(lower, "display controller")
}

// classifyVendor maps a device description line to a vendor family.
func classifyVendor(line string) Vendor {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "nvidia"):
		return VendorNVIDIA
	case strings.Contains(lower, "amd"), strings.Contains(lower, "radeon"),
		strings.Contains(lower, "advanced micro devices"):
		return VendorAMD
	case strings.Contains(lower, "intel"):
		return VendorIntel
	default:
		return VendorUnknown
	}
}

// -----------------------------------------------------------------------------
// Environment Recommendation
// -----------------------------------------------------------------------------

// RecommendEnvironment maps detected hardware to the default environment
// best suited to it: CUDA for NVIDIA, ROCm for AMD, the PaddlePaddle
// CPU/XPU stack otherwise.
func RecommendEnvironment(devices []GPUDevice) string {
	for _, d := range devices {
		if d.Vendor == VendorNVIDIA {
			return "yolov5-cuda"
		}
	}
	for _, d := range devices {
		if d.Vendor == VendorAMD {
			return "yolov8-rocm"
		}
	}
	return "ppyolo-xpu"
}

// StaticProbe always reports fixed devices. Used by tests.
type StaticProbe struct {
	Devices []GPUDevice
}

// DetectGPUs returns the fixed device list.
func (p *StaticProbe) DetectGPUs(ctx context.Context) []GPUDevice {
	return p.Devices
}

// Compile-time interface compliance check.
var (
	_ Probe = (*DefaultProbe)(nil)
	_ Probe = (*StaticProbe)(nil)
)
