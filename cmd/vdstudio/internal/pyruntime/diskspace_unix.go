// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package pyruntime

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// availableBytes returns the free disk space for the filesystem containing
// path. The path itself may not exist yet; the nearest existing ancestor is
// measured instead.
func availableBytes(path string) (uint64, error) {
	probe := path
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	var st unix.Statfs_t
	if err := unix.Statfs(probe, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
