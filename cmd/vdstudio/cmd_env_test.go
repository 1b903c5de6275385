// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/registry"
)

// Config edits made while a prepare run is in flight must reach the running
// process, so the watcher has to be live for the duration of the command.
func TestStartRegistryWatch_PicksUpExternalEdit(t *testing.T) {
	reg, err := registry.Load(filepath.Join(t.TempDir(), registry.DefaultFileName))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	stop := startRegistryWatch(context.Background(), reg)
	defer stop()

	editor, err := registry.Load(reg.Path())
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if err := editor.Add("edited-env", registry.EnvironmentSpec{
		PythonVersion: "3.12.1",
		Packages:      []string{"numpy==1.26.0"},
	}); err != nil {
		t.Fatalf("external edit failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, err := reg.Get("edited-env"); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("live watch did not pick up the external edit")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// stop must not return before the watcher goroutine has exited; a watcher
// left running would keep reloading after the command finished.
func TestStartRegistryWatch_StopWaitsForExit(t *testing.T) {
	reg, err := registry.Load(filepath.Join(t.TempDir(), registry.DefaultFileName))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	stop := startRegistryWatch(context.Background(), reg)

	returned := make(chan struct{})
	go func() {
		stop()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return after cancelling the watch")
	}
}
