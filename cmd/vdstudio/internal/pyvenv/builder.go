// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package pyvenv creates per-environment Python virtual environments.

Creation prefers the interpreter's built-in venv module and falls back to
installing and running virtualenv when venv fails — the Windows embeddable
distribution and some minimal source builds ship without a working venv.
After creation pip inside the environment is upgraded so old bundled pips
do not choke on modern wheel metadata.
*/
package pyvenv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
)

// VenvCreationError describes a virtual environment creation failure after
// both strategies were tried.
type VenvCreationError struct {
	// Name is the environment name.
	Name string

	// VenvErr is the built-in venv module's failure.
	VenvErr error

	// VirtualenvErr is the virtualenv fallback's failure (nil if the
	// fallback was never reached).
	VirtualenvErr error
}

// Error implements the error interface.
func (e *VenvCreationError) Error() string {
	if e.VirtualenvErr != nil {
		return fmt.Sprintf("virtual environment %q: venv failed (%v) and virtualenv fallback failed (%v)", e.Name, e.VenvErr, e.VirtualenvErr)
	}
	return fmt.Sprintf("virtual environment %q: %v", e.Name, e.VenvErr)
}

// Unwrap returns the most recent underlying error.
func (e *VenvCreationError) Unwrap() error {
	if e.VirtualenvErr != nil {
		return e.VirtualenvErr
	}
	return e.VenvErr
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// VenvBuilder creates virtual environments under a root directory.
type VenvBuilder interface {
	// Create builds the virtual environment for name using interpreter
	// and returns its path. pipIndexURL is the primary package index used
	// for the virtualenv fallback install and the pip self-upgrade.
	Create(ctx context.Context, interpreter, name, pipIndexURL string) (string, error)

	// EnvPath returns where the environment for name lives (or would
	// live), without creating anything.
	EnvPath(name string) string

	// PipPath returns the pip executable inside the environment at
	// envPath.
	PipPath(envPath string) string

	// PythonPath returns the python executable inside the environment at
	// envPath.
	PythonPath(envPath string) string

	// IsReady reports whether the environment for name has a working
	// interpreter.
	IsReady(name string) bool
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultVenvBuilder implements VenvBuilder with real subprocess calls.
type DefaultVenvBuilder struct {
	rootDir string
	procs   procmgr.ProcessManager

	// goos selects script directory layout; overridden only in tests.
	goos string
}

// NewDefaultVenvBuilder creates a builder that places environments under
// rootDir.
func NewDefaultVenvBuilder(rootDir string, procs procmgr.ProcessManager) *DefaultVenvBuilder {
	return &DefaultVenvBuilder{
		rootDir: rootDir,
		procs:   procs,
		goos:    runtime.GOOS,
	}
}

// EnvPath returns the environment directory for name.
func (b *DefaultVenvBuilder) EnvPath(name string) string {
	return filepath.Join(b.rootDir, name)
}

// binDir returns the scripts directory inside an environment.
func (b *DefaultVenvBuilder) binDir(envPath string) string {
	if b.goos == "windows" {
		return filepath.Join(envPath, "Scripts")
	}
	return filepath.Join(envPath, "bin")
}

// PipPath returns the pip executable inside envPath.
func (b *DefaultVenvBuilder) PipPath(envPath string) string {
	if b.goos == "windows" {
		return filepath.Join(b.binDir(envPath), "pip.exe")
	}
	return filepath.Join(b.binDir(envPath), "pip")
}

// PythonPath returns the python executable inside envPath.
func (b *DefaultVenvBuilder) PythonPath(envPath string) string {
	if b.goos == "windows" {
		return filepath.Join(b.binDir(envPath), "python.exe")
	}
	return filepath.Join(b.binDir(envPath), "python")
}

// IsReady reports whether the environment for name has an interpreter.
func (b *DefaultVenvBuilder) IsReady(name string) bool {
	_, err := os.Stat(b.PythonPath(b.EnvPath(name)))
	return err == nil
}

// Create builds the virtual environment for name.
//
// # Description
//
// Runs "python -m venv <path>" first. On failure, installs virtualenv into
// the runtime interpreter from pipIndexURL and runs "python -m virtualenv
// <path>". Either way pip inside the new environment is upgraded before
// returning; a pip too old for current wheel tags fails installs with
// messages that do not point at the real cause.
//
// # Outputs
//
//   - string: The environment path
//   - error: *VenvCreationError when both strategies fail
func (b *DefaultVenvBuilder) Create(ctx context.Context, interpreter, name, pipIndexURL string) (string, error) {
	envPath := b.EnvPath(name)
	if err := os.MkdirAll(envPath, 0o755); err != nil {
		return "", &VenvCreationError{Name: name, VenvErr: err}
	}

	slog.Info("Creating virtual environment", "name", name, "path", envPath)
	_, venvErr := b.procs.Run(ctx, interpreter, "-m", "venv", envPath)
	if venvErr != nil {
		slog.Warn("venv module failed, falling back to virtualenv", "name", name, "error", venvErr)
		if err := b.createWithVirtualenv(ctx, interpreter, envPath, pipIndexURL); err != nil {
			return "", &VenvCreationError{Name: name, VenvErr: venvErr, VirtualenvErr: err}
		}
	}

	if err := b.upgradePip(ctx, envPath, pipIndexURL); err != nil {
		// The environment works without the upgrade; log and move on.
		slog.Warn("pip self-upgrade failed", "name", name, "error", err)
	}
	return envPath, nil
}

// createWithVirtualenv installs virtualenv into the runtime interpreter and
// uses it to build the environment.
func (b *DefaultVenvBuilder) createWithVirtualenv(ctx context.Context, interpreter, envPath, pipIndexURL string) error {
	if _, err := b.procs.Run(ctx, interpreter, "-m", "pip", "install", "virtualenv", "--index-url", pipIndexURL); err != nil {
		return err
	}
	_, err := b.procs.Run(ctx, interpreter, "-m", "virtualenv", envPath)
	return err
}

// upgradePip upgrades pip inside the environment from pipIndexURL.
func (b *DefaultVenvBuilder) upgradePip(ctx context.Context, envPath, pipIndexURL string) error {
	_, err := b.procs.Run(ctx, b.PipPath(envPath), "install", "--upgrade", "pip", "--index-url", pipIndexURL)
	return err
}

// Compile-time interface compliance check.
var _ VenvBuilder = (*DefaultVenvBuilder)(nil)
