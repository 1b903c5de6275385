// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package pipinstall installs package lists into virtual environments.

Installation is best-effort by design: packages install one at a time, in
order, and a failing package is recorded and skipped rather than aborting
the run. A vision environment with 40 requirements where one cosmetic
dependency fails to build is still far more useful than no environment at
all; the caller surfaces failures as warnings.
*/
package pipinstall

import (
	"context"
	"log/slog"
	"strings"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/metrics"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
)

// utf8Env forces UTF-8 subprocess I/O; pip error text with non-ASCII
// characters otherwise corrupts on Windows consoles.
var utf8Env = []string{"PYTHONIOENCODING=utf-8"}

// PackageProgress reports the package about to be installed. index is
// zero-based within the full list; total is the full list length. Blank
// entries are skipped silently and never reported.
type PackageProgress func(index, total int, pkg string)

// Report summarizes one install run.
type Report struct {
	// Installed lists packages that installed successfully, in order.
	Installed []string

	// Failed maps each failed package to its error.
	Failed map[string]error

	// Skipped counts blank entries.
	Skipped int
}

// AllSucceeded reports whether no package failed.
func (r *Report) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Installer installs a package list into a virtual environment.
type Installer interface {
	// Install installs packages via the pip at pipPath, pulling from
	// indexURL (plus extraIndexURL when non-empty). onPackage (may be
	// nil) fires once per non-blank entry, before its pip invocation;
	// blank entries are skipped without a progress event.
	//
	// # Outputs
	//
	//   - *Report: Always non-nil; inspect Failed for partial failures
	//   - error: Only on context cancellation; package failures are not
	//     errors
	Install(ctx context.Context, pipPath string, packages []string, indexURL, extraIndexURL string, onPackage PackageProgress) (*Report, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultInstaller implements Installer over a ProcessManager.
type DefaultInstaller struct {
	procs procmgr.ProcessManager
}

// NewDefaultInstaller creates an installer.
func NewDefaultInstaller(procs procmgr.ProcessManager) *DefaultInstaller {
	return &DefaultInstaller{procs: procs}
}

// Install installs packages one at a time, best-effort.
func (in *DefaultInstaller) Install(ctx context.Context, pipPath string, packages []string, indexURL, extraIndexURL string, onPackage PackageProgress) (*Report, error) {
	report := &Report{Failed: make(map[string]error)}
	total := len(packages)

	for i, pkg := range packages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if strings.TrimSpace(pkg) == "" {
			slog.Warn("Skipping blank package entry", "index", i)
			metrics.RecordPackageInstall("skipped")
			report.Skipped++
			continue
		}

		if onPackage != nil {
			onPackage(i, total, pkg)
		}

		args := buildInstallArgs(pkg, indexURL, extraIndexURL)
		slog.Info("Installing package", "package", pkg, "index", i+1, "total", total)

		if _, err := in.procs.RunWithEnv(ctx, utf8Env, pipPath, args...); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			slog.Error("Package install failed, continuing", "package", pkg, "error", err)
			metrics.RecordPackageInstall("error")
			report.Failed[pkg] = err
			continue
		}

		metrics.RecordPackageInstall("success")
		report.Installed = append(report.Installed, pkg)
	}

	return report, nil
}

// buildInstallArgs builds the pip argument list for one entry. Entries
// starting with "-" carry their own pip flags ("-r <url>") and are split
// into separate arguments; plain requirement strings pass through as one.
func buildInstallArgs(pkg, indexURL, extraIndexURL string) []string {
	args := []string{"install"}
	if strings.HasPrefix(pkg, "-") {
		args = append(args, strings.Fields(pkg)...)
	} else {
		args = append(args, pkg)
	}
	args = append(args, "--index-url", indexURL)
	if extraIndexURL != "" {
		args = append(args, "--extra-index-url", extraIndexURL)
	}
	return args
}

// Compile-time interface compliance check.
var _ Installer = (*DefaultInstaller)(nil)
