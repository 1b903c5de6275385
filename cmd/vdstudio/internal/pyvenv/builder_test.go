// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pyvenv

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
)

const testIndexURL = "https://pypi.org/simple"

func TestPaths_PerPlatform(t *testing.T) {
	b := NewDefaultVenvBuilder("/work/envs", &procmgr.MockProcessManager{})

	b.goos = "windows"
	env := b.EnvPath("yolov5-cuda")
	if got := b.PipPath(env); got != filepath.Join("/work/envs", "yolov5-cuda", "Scripts", "pip.exe") {
		t.Errorf("windows pip path = %q", got)
	}
	if got := b.PythonPath(env); got != filepath.Join("/work/envs", "yolov5-cuda", "Scripts", "python.exe") {
		t.Errorf("windows python path = %q", got)
	}

	b.goos = "linux"
	if got := b.PipPath(env); got != filepath.Join("/work/envs", "yolov5-cuda", "bin", "pip") {
		t.Errorf("linux pip path = %q", got)
	}
}

func TestCreate_UsesVenvModule(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	b := NewDefaultVenvBuilder(t.TempDir(), procs)
	b.goos = "linux"

	envPath, err := b.Create(context.Background(), "/runtime/bin/python", "yolov5-cuda", testIndexURL)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if envPath != b.EnvPath("yolov5-cuda") {
		t.Errorf("envPath = %q", envPath)
	}

	calls := procs.GetCalls()
	if len(calls) < 1 {
		t.Fatal("no subprocess calls recorded")
	}
	first := calls[0]
	if first.Name != "/runtime/bin/python" || strings.Join(first.Args, " ") != "-m venv "+envPath {
		t.Errorf("unexpected first call: %s %v", first.Name, first.Args)
	}

	// The pip self-upgrade must target the environment's own pip and the
	// configured index.
	last := calls[len(calls)-1]
	if last.Name != b.PipPath(envPath) {
		t.Errorf("pip upgrade used %q, want env pip", last.Name)
	}
	joined := strings.Join(last.Args, " ")
	if !strings.Contains(joined, "--upgrade pip") || !strings.Contains(joined, "--index-url "+testIndexURL) {
		t.Errorf("pip upgrade args = %q", joined)
	}
}

func TestCreate_FallsBackToVirtualenv(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	procs.RunFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if len(args) >= 2 && args[0] == "-m" && args[1] == "venv" {
			return nil, &procmgr.CommandError{Command: name + " -m venv", ExitCode: 1}
		}
		return nil, nil
	}

	b := NewDefaultVenvBuilder(t.TempDir(), procs)
	b.goos = "linux"

	if _, err := b.Create(context.Background(), "/runtime/bin/python", "yolov8-rocm", testIndexURL); err != nil {
		t.Fatalf("Create with fallback failed: %v", err)
	}

	var installedVirtualenv, ranVirtualenv bool
	for _, call := range procs.GetCalls() {
		joined := strings.Join(call.Args, " ")
		if strings.Contains(joined, "pip install virtualenv") && strings.Contains(joined, "--index-url "+testIndexURL) {
			installedVirtualenv = true
		}
		if strings.HasPrefix(joined, "-m virtualenv") {
			ranVirtualenv = true
		}
	}
	if !installedVirtualenv {
		t.Error("virtualenv was never installed into the runtime interpreter")
	}
	if !ranVirtualenv {
		t.Error("virtualenv was never invoked")
	}
}

func TestCreate_BothStrategiesFail(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	procs.RunFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, &procmgr.CommandError{Command: name, ExitCode: 1, Stderr: "boom"}
	}

	b := NewDefaultVenvBuilder(t.TempDir(), procs)
	b.goos = "linux"

	_, err := b.Create(context.Background(), "/runtime/bin/python", "broken", testIndexURL)
	var venvErr *VenvCreationError
	if !errors.As(err, &venvErr) {
		t.Fatalf("expected *VenvCreationError, got %v", err)
	}
	if venvErr.VenvErr == nil || venvErr.VirtualenvErr == nil {
		t.Error("both strategy errors must be preserved")
	}
}

func TestCreate_PipUpgradeFailureIsNotFatal(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	procs.RunFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if strings.Contains(strings.Join(args, " "), "--upgrade pip") {
			return nil, &procmgr.CommandError{Command: name, ExitCode: 1}
		}
		return nil, nil
	}

	b := NewDefaultVenvBuilder(t.TempDir(), procs)
	b.goos = "linux"

	if _, err := b.Create(context.Background(), "/runtime/bin/python", "yolov5-cuda", testIndexURL); err != nil {
		t.Errorf("a failed pip self-upgrade must not fail creation: %v", err)
	}
}

func TestIsReady(t *testing.T) {
	b := NewDefaultVenvBuilder(t.TempDir(), &procmgr.MockProcessManager{})
	b.goos = "linux"

	if b.IsReady("missing") {
		t.Error("absent environment reported ready")
	}
}
