// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package pyruntime provisions standalone Python interpreters on demand.

Each interpreter version lives under its own directory below the runtime
root ("python3.8", "python3.9", ...). The install mechanism differs per
platform: Windows uses the embeddable zip distribution plus a get-pip
bootstrap, macOS uses the official pkg installer, and Linux builds from
the source tarball. An already-present interpreter is reused without any
network traffic, so EnsureRuntime is safe to call on every preparation.
*/
package pyruntime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/netfetch"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/registry"
)

// DefaultMinFreeBytes is the disk space preflight threshold. A CUDA-era
// interpreter plus build intermediates fits comfortably under this.
const DefaultMinFreeBytes = 2 << 30

// RuntimeProvisionError describes a failed interpreter installation.
type RuntimeProvisionError struct {
	// Version is the requested interpreter version.
	Version string

	// Stage names the step that failed (preflight, download, extract,
	// bootstrap-pip, build, verify).
	Stage string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error implements the error interface.
func (e *RuntimeProvisionError) Error() string {
	return fmt.Sprintf("python %s provisioning failed at %s: %v", e.Version, e.Stage, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *RuntimeProvisionError) Unwrap() error {
	return e.Wrapped
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// RuntimeProvisioner ensures a Python interpreter version is installed.
type RuntimeProvisioner interface {
	// EnsureRuntime returns the interpreter path for version, installing
	// it from mirrors when absent. onProgress (may be nil) reports
	// archive download progress.
	//
	// # Outputs
	//
	//   - string: Absolute interpreter path
	//   - error: *RuntimeProvisionError on failure
	EnsureRuntime(ctx context.Context, version string, mirrors registry.MirrorSet, onProgress netfetch.TransferProgress) (string, error)

	// InterpreterPath returns where the interpreter for version lives (or
	// would live), without installing anything.
	InterpreterPath(version string) string

	// IsInstalled reports whether the interpreter for version exists.
	IsInstalled(version string) bool
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultRuntimeProvisioner implements RuntimeProvisioner with real
// downloads and subprocess installs.
type DefaultRuntimeProvisioner struct {
	rootDir    string
	downloader netfetch.FileDownloader
	procs      procmgr.ProcessManager

	// minFreeBytes is the disk preflight threshold.
	minFreeBytes uint64

	// goos selects platform behavior; overridden only in tests.
	goos string

	// group deduplicates concurrent installs of the same version.
	group singleflight.Group
}

// NewDefaultRuntimeProvisioner creates a provisioner rooted at rootDir.
func NewDefaultRuntimeProvisioner(rootDir string, downloader netfetch.FileDownloader, procs procmgr.ProcessManager) *DefaultRuntimeProvisioner {
	return &DefaultRuntimeProvisioner{
		rootDir:      rootDir,
		downloader:   downloader,
		procs:        procs,
		minFreeBytes: DefaultMinFreeBytes,
		goos:         runtime.GOOS,
	}
}

// majorMinor reduces "3.8.10" to "3.8".
func majorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// runtimeDir returns the install directory for version.
func (p *DefaultRuntimeProvisioner) runtimeDir(version string) string {
	return filepath.Join(p.rootDir, "python"+majorMinor(version))
}

// InterpreterPath returns the expected interpreter location for version.
func (p *DefaultRuntimeProvisioner) InterpreterPath(version string) string {
	if p.goos == "windows" {
		return filepath.Join(p.runtimeDir(version), "python.exe")
	}
	return filepath.Join(p.runtimeDir(version), "bin", "python")
}

// IsInstalled reports whether the interpreter for version exists on disk.
func (p *DefaultRuntimeProvisioner) IsInstalled(version string) bool {
	_, err := os.Stat(p.InterpreterPath(version))
	return err == nil
}

// EnsureRuntime returns the interpreter path for version, installing when
// absent.
//
// # Description
//
// The fast path is a single stat: an existing interpreter is returned
// as-is, with no version re-verification — interpreter directories are
// owned exclusively by this tool and keyed by major.minor. Concurrent
// calls for the same major.minor collapse into one install via
// singleflight; distinct versions install in parallel.
func (p *DefaultRuntimeProvisioner) EnsureRuntime(ctx context.Context, version string, mirrors registry.MirrorSet, onProgress netfetch.TransferProgress) (string, error) {
	interpreter := p.InterpreterPath(version)
	if p.IsInstalled(version) {
		slog.Debug("Python runtime already installed", "version", version, "path", interpreter)
		return interpreter, nil
	}

	_, err, _ := p.group.Do(majorMinor(version), func() (interface{}, error) {
		// Re-check under the flight lock; a concurrent caller may have
		// just finished the install.
		if p.IsInstalled(version) {
			return nil, nil
		}
		return nil, p.install(ctx, version, mirrors, onProgress)
	})
	if err != nil {
		return "", err
	}

	if !p.IsInstalled(version) {
		return "", &RuntimeProvisionError{
			Version: version,
			Stage:   "verify",
			Wrapped: fmt.Errorf("interpreter missing at %s after install", interpreter),
		}
	}
	return interpreter, nil
}

// install runs the platform-specific installation for version.
func (p *DefaultRuntimeProvisioner) install(ctx context.Context, version string, mirrors registry.MirrorSet, onProgress netfetch.TransferProgress) error {
	targetDir := p.runtimeDir(version)
	slog.Info("Installing Python runtime", "version", version, "target", targetDir, "mirror", mirrors.PythonBaseURL)

	free, err := availableBytes(p.rootDir)
	if err != nil {
		slog.Warn("Disk space preflight unavailable, continuing", "error", err)
	} else if free < p.minFreeBytes {
		return &RuntimeProvisionError{
			Version: version,
			Stage:   "preflight",
			Wrapped: fmt.Errorf("only %d bytes free under %s, need %d", free, p.rootDir, p.minFreeBytes),
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "preflight", Wrapped: err}
	}

	switch p.goos {
	case "windows":
		err = p.installWindows(ctx, version, mirrors, targetDir, onProgress)
	case "darwin":
		err = p.installDarwin(ctx, version, mirrors, targetDir, onProgress)
	default:
		err = p.installLinux(ctx, version, mirrors, targetDir, onProgress)
	}
	if err != nil {
		return err
	}

	slog.Info("Python runtime installed", "version", version, "path", p.InterpreterPath(version))
	return nil
}

// archiveURL builds "<base><version>/<file>" against the mirror base.
func archiveURL(base, version, file string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + version + "/" + file
}

// installWindows extracts the embeddable zip, enables site imports in the
// ._pth file, and bootstraps pip via get-pip.py.
func (p *DefaultRuntimeProvisioner) installWindows(ctx context.Context, version string, mirrors registry.MirrorSet, targetDir string, onProgress netfetch.TransferProgress) error {
	archiveName := fmt.Sprintf("python-%s-embed-amd64.zip", version)
	archivePath := filepath.Join(os.TempDir(), archiveName)
	url := archiveURL(mirrors.PythonBaseURL, version, archiveName)

	if err := p.downloader.Fetch(ctx, "runtime", url, archivePath, onProgress); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "download", Wrapped: err}
	}
	defer os.Remove(archivePath)

	if err := extractZip(archivePath, targetDir); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "extract", Wrapped: err}
	}

	// The embeddable distribution ships with site imports commented out;
	// pip cannot work until they are enabled.
	if err := enableSiteImports(targetDir, majorMinor(version)); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "extract", Wrapped: err}
	}

	getPipPath := filepath.Join(os.TempDir(), "get-pip.py")
	if err := p.downloader.Fetch(ctx, "get-pip", getPipBootstrapURL, getPipPath, nil); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "bootstrap-pip", Wrapped: err}
	}
	defer os.Remove(getPipPath)

	if _, err := p.procs.Run(ctx, filepath.Join(targetDir, "python.exe"), getPipPath); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "bootstrap-pip", Wrapped: err}
	}
	return nil
}

// getPipBootstrapURL is the official pip bootstrap script.
const getPipBootstrapURL = "https://bootstrap.pypa.io/get-pip.py"

// installDarwin downloads the official pkg and hands it to the system
// installer.
func (p *DefaultRuntimeProvisioner) installDarwin(ctx context.Context, version string, mirrors registry.MirrorSet, targetDir string, onProgress netfetch.TransferProgress) error {
	pkgName := fmt.Sprintf("python-%s-macos11.pkg", version)
	pkgPath := filepath.Join(os.TempDir(), pkgName)
	url := archiveURL(mirrors.PythonBaseURL, version, pkgName)

	if err := p.downloader.Fetch(ctx, "runtime", url, pkgPath, onProgress); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "download", Wrapped: err}
	}
	defer os.Remove(pkgPath)

	if _, err := p.procs.Run(ctx, "installer", "-pkg", pkgPath, "-target", targetDir); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "install", Wrapped: err}
	}
	return nil
}

// installLinux builds the interpreter from the source tarball. Slow, but
// the only official distribution channel that works on every distro.
func (p *DefaultRuntimeProvisioner) installLinux(ctx context.Context, version string, mirrors registry.MirrorSet, targetDir string, onProgress netfetch.TransferProgress) error {
	tarName := fmt.Sprintf("Python-%s.tgz", version)
	tarPath := filepath.Join(os.TempDir(), tarName)
	url := archiveURL(mirrors.PythonBaseURL, version, tarName)

	if err := p.downloader.Fetch(ctx, "runtime", url, tarPath, onProgress); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "download", Wrapped: err}
	}
	defer os.Remove(tarPath)

	if err := extractTarGz(tarPath, os.TempDir()); err != nil {
		return &RuntimeProvisionError{Version: version, Stage: "extract", Wrapped: err}
	}
	buildDir := filepath.Join(os.TempDir(), fmt.Sprintf("Python-%s", version))
	defer os.RemoveAll(buildDir)

	steps := [][]string{
		{"./configure", "--prefix=" + targetDir, "--enable-optimizations"},
		{"make", "-j", fmt.Sprintf("%d", runtime.NumCPU())},
		{"make", "install"},
	}
	for _, step := range steps {
		slog.Info("Building Python from source", "version", version, "step", step[0])
		if _, err := p.procs.RunInDir(ctx, buildDir, step[0], step[1:]...); err != nil {
			return &RuntimeProvisionError{Version: version, Stage: "build", Wrapped: err}
		}
	}
	return nil
}

// Compile-time interface compliance check.
var _ RuntimeProvisioner = (*DefaultRuntimeProvisioner)(nil)
