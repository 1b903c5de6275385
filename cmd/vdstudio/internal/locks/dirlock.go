// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package locks

import (
	"fmt"
	"os"
	"path/filepath"
)

// ErrDirLocked is returned when another process holds the directory lock.
var ErrDirLocked = fmt.Errorf("directory is locked by another process")

// DirLock is a cross-process advisory lock over a base directory.
//
// # Description
//
// Two vdstudio processes provisioning into the same base directory would
// race on the shared runtimes/environments namespaces. DirLock takes an
// exclusive advisory lock on <dir>/.vdstudio.lock for the duration of a
// mutating command. The lock is advisory: processes that do not check it
// are not stopped.
//
// # Thread Safety
//
// Not safe for concurrent use from multiple goroutines. Use from a single
// goroutine (typically main); the lock provides inter-process exclusion,
// not intra-process.
//
// # Limitations
//
//   - flock does not work reliably on NFS mounts
//   - The OS releases the lock if the process crashes without Unlock
type DirLock struct {
	path string
	file *os.File
	held bool
}

// NewDirLock creates a lock rooted at dir. The lock is not yet acquired.
func NewDirLock(dir string) *DirLock {
	return &DirLock{path: filepath.Join(dir, ".vdstudio.lock")}
}

// Acquire takes the exclusive lock without blocking.
//
// # Outputs
//
//   - error: ErrDirLocked (wrapped) if another process holds the lock,
//     or a filesystem error if the lock file cannot be created.
func (d *DirLock) Acquire() error {
	if d.held {
		return nil
	}

	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", d.path, err)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		return fmt.Errorf("%w (path %s)", err, d.path)
	}

	d.file = f
	d.held = true
	return nil
}

// Release drops the lock if held. Safe to call multiple times.
func (d *DirLock) Release() error {
	if !d.held || d.file == nil {
		return nil
	}

	err := flockRelease(d.file)
	d.file.Close()
	d.file = nil
	d.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this process holds the lock.
func (d *DirLock) IsHeld() bool {
	return d.held
}

// Path returns the lock file path, for error messages.
func (d *DirLock) Path() string {
	return d.path
}
