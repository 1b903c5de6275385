// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"context"
	"testing"
	"time"
)

func TestWatch_ReloadsAfterExternalEdit(t *testing.T) {
	r := loadTestRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Watch(ctx)
	}()

	// Simulate an external edit through a second handle on the same file.
	editor, err := Load(r.Path())
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if err := editor.Add("edited-env", EnvironmentSpec{
		PythonVersion: "3.12.1",
		Packages:      []string{"numpy==1.26.0"},
	}); err != nil {
		t.Fatalf("external edit failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, err := r.Get("edited-env"); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not pick up external edit")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}
