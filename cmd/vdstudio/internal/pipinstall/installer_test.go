// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipinstall

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
)

const (
	testPip   = "/envs/yolov5-cuda/bin/pip"
	testIndex = "https://pypi.org/simple"
	testExtra = "https://download.pytorch.org/whl/cu113"
)

func TestInstall_OrderedWithIndexes(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	in := NewDefaultInstaller(procs)

	packages := []string{"torch==1.10.0+cu113", "torchvision==0.11.1+cu113"}
	report, err := in.Install(context.Background(), testPip, packages, testIndex, testExtra, nil)
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !report.AllSucceeded() {
		t.Fatalf("unexpected failures: %v", report.Failed)
	}
	if !slices.Equal(report.Installed, packages) {
		t.Errorf("Installed = %v, want input order preserved", report.Installed)
	}

	calls := procs.GetCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 pip invocations, got %d", len(calls))
	}
	for i, call := range calls {
		if call.Name != testPip {
			t.Errorf("call %d used %q, want env pip", i, call.Name)
		}
		joined := strings.Join(call.Args, " ")
		if !strings.HasPrefix(joined, "install "+packages[i]) {
			t.Errorf("call %d args = %q", i, joined)
		}
		if !strings.Contains(joined, "--index-url "+testIndex) {
			t.Errorf("call %d missing primary index: %q", i, joined)
		}
		if !strings.Contains(joined, "--extra-index-url "+testExtra) {
			t.Errorf("call %d missing extra index: %q", i, joined)
		}
		if !slices.Contains(call.ExtraEnv, "PYTHONIOENCODING=utf-8") {
			t.Errorf("call %d missing UTF-8 env", i)
		}
	}
}

func TestInstall_NoExtraIndexFlagWhenEmpty(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	in := NewDefaultInstaller(procs)

	_, err := in.Install(context.Background(), testPip, []string{"paddlepaddle==2.4.2"}, testIndex, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	joined := strings.Join(procs.GetCalls()[0].Args, " ")
	if strings.Contains(joined, "--extra-index-url") {
		t.Errorf("empty extra index must not emit the flag: %q", joined)
	}
}

func TestInstall_RequirementFileEntrySplitsFlags(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	in := NewDefaultInstaller(procs)

	entry := "-r https://raw.githubusercontent.com/ultralytics/yolov5/master/requirements.txt"
	_, err := in.Install(context.Background(), testPip, []string{entry}, testIndex, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	args := procs.GetCalls()[0].Args
	rIdx := slices.Index(args, "-r")
	if rIdx < 0 || rIdx+1 >= len(args) {
		t.Fatalf("-r flag not split into its own argument: %v", args)
	}
	if !strings.HasPrefix(args[rIdx+1], "https://") {
		t.Errorf("-r value = %q", args[rIdx+1])
	}
}

func TestInstall_FailureIsolation(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	procs.RunFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if slices.Contains(args, "torchvision==0.11.1+cu113") {
			return nil, &procmgr.CommandError{Command: name, ExitCode: 1, Stderr: "no matching distribution"}
		}
		return nil, nil
	}
	in := NewDefaultInstaller(procs)

	packages := []string{"torch==1.10.0+cu113", "torchvision==0.11.1+cu113", "torchaudio==0.10.0+cu113"}
	report, err := in.Install(context.Background(), testPip, packages, testIndex, "", nil)
	if err != nil {
		t.Fatalf("a failed package must not abort the run: %v", err)
	}

	if !slices.Equal(report.Installed, []string{"torch==1.10.0+cu113", "torchaudio==0.10.0+cu113"}) {
		t.Errorf("Installed = %v; packages after a failure must still install", report.Installed)
	}
	if _, ok := report.Failed["torchvision==0.11.1+cu113"]; !ok {
		t.Error("failed package missing from report")
	}
	if report.AllSucceeded() {
		t.Error("AllSucceeded must be false with a failed package")
	}
}

func TestInstall_BlankEntriesSkippedWithoutPipCall(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	in := NewDefaultInstaller(procs)

	var seen []string
	onPackage := func(index, total int, pkg string) {
		if total != 3 {
			t.Errorf("total = %d, want 3 (full list length)", total)
		}
		seen = append(seen, pkg)
	}

	report, err := in.Install(context.Background(), testPip, []string{"numpy", "  ", "opencv-python"}, testIndex, "", onPackage)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if len(procs.GetCalls()) != 2 {
		t.Errorf("blank entry must not reach pip; %d calls", len(procs.GetCalls()))
	}
	if !slices.Equal(seen, []string{"numpy", "opencv-python"}) {
		t.Errorf("progress must fire exactly once per non-blank entry, got %v", seen)
	}
}

func TestInstall_CancelledContext(t *testing.T) {
	procs := &procmgr.MockProcessManager{}
	in := NewDefaultInstaller(procs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Install(ctx, testPip, []string{"numpy"}, testIndex, "", nil)
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(procs.GetCalls()) != 0 {
		t.Error("cancelled run must not invoke pip")
	}
}
