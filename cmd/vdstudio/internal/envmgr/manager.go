// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package envmgr is the lifecycle facade over the provisioning pipeline.

PrepareEnvironment drives region probing, runtime installation, virtual
environment creation and package installation as one sequenced run with a
single progress stream. Progress percent is banded per stage (0-10 probe,
10-30 runtime, 30-50 venv, 50-90 install, then 100) so a frontend progress
bar moves monotonically whatever the stage durations are.

Concurrent prepares of the same environment are rejected, not queued: the
second caller gets ProvisionInProgressError immediately. Different
environments prepare in parallel.
*/
package envmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/locks"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/metrics"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/netprobe"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/observability"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/pipinstall"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/pyruntime"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/pyvenv"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/registry"
)

// Progress band boundaries.
const (
	percentStart        = 0
	percentRuntimeStage = 10
	percentVenvStage    = 30
	percentInstallStage = 50
	percentDone         = 100
	percentFailed       = -1
)

// EnvironmentStatus is one row of ListAvailableEnvironments.
type EnvironmentStatus struct {
	Name          string
	PythonVersion string
	Packages      []string
	Ready         bool
}

// InstalledPackage is one entry of "pip list --format=json".
type InstalledPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// EnvironmentInfo is the detailed view of one environment.
type EnvironmentInfo struct {
	Name          string
	Ready         bool
	PythonVersion string
	Packages      []string

	// InstalledPackages is populated only for ready environments; a
	// failed pip listing leaves it empty rather than failing the call.
	InstalledPackages []InstalledPackage
}

// Manager sequences the provisioning pipeline.
type Manager struct {
	reg       *registry.Registry
	probe     netprobe.RegionProbe
	runtimes  pyruntime.RuntimeProvisioner
	venvs     pyvenv.VenvBuilder
	installer pipinstall.Installer
	procs     procmgr.ProcessManager

	// inFlight rejects concurrent prepares of the same environment.
	inFlight *locks.KeyedLock
}

// NewManager wires the facade from its capability components.
func NewManager(
	reg *registry.Registry,
	probe netprobe.RegionProbe,
	runtimes pyruntime.RuntimeProvisioner,
	venvs pyvenv.VenvBuilder,
	installer pipinstall.Installer,
	procs procmgr.ProcessManager,
) *Manager {
	return &Manager{
		reg:       reg,
		probe:     probe,
		runtimes:  runtimes,
		venvs:     venvs,
		installer: installer,
		procs:     procs,
		inFlight:  locks.NewKeyedLock(),
	}
}

// regionKey maps a probed region to its mirror map key.
func regionKey(r netprobe.Region) string {
	if r == netprobe.RegionMainland {
		return registry.RegionKeyMainland
	}
	return registry.RegionKeyGlobal
}

// PrepareEnvironment provisions name end to end.
//
// # Description
//
// Looks up the definition, then runs probe, runtime, venv and install
// stages under a per-name exclusion lock. Package install failures are
// surfaced as Warning events and do not fail the run; the environment is
// still usable for everything whose dependencies did install. Any stage
// failure emits a Failed event with percent -1 and returns a *PrepareError.
//
// # Outputs
//
//   - error: *registry.UnknownEnvironmentError, *ProvisionInProgressError,
//     or *PrepareError
func (m *Manager) PrepareEnvironment(ctx context.Context, name string, sink EventSink) error {
	spec, err := m.reg.Get(name)
	if err != nil {
		return err
	}

	release, err := m.inFlight.TryAcquire(name)
	if err != nil {
		if errors.Is(err, locks.ErrKeyBusy) {
			metrics.RecordProvision("rejected")
			return &ProvisionInProgressError{Name: name}
		}
		return err
	}
	defer release()

	runID := uuid.NewString()
	slog.Info("Preparing environment", "name", name, "run_id", runID, "python_version", spec.PythonVersion)
	sink.emit(Event{Kind: EventStarted, Env: name, RunID: runID, Message: "Starting environment preparation", Percent: percentStart})

	if err := m.prepare(ctx, name, runID, spec, sink); err != nil {
		metrics.RecordProvision("error")
		sink.emit(Event{Kind: EventFailed, Env: name, RunID: runID, Message: fmt.Sprintf("Environment preparation failed: %v", err), Percent: percentFailed, Err: err})
		slog.Error("Environment preparation failed", "name", name, "run_id", runID, "error", err)
		return err
	}

	metrics.RecordProvision("success")
	sink.emit(Event{Kind: EventCompleted, Env: name, RunID: runID, Message: "Environment ready", Percent: percentDone})
	slog.Info("Environment ready", "name", name, "run_id", runID)
	return nil
}

func (m *Manager) prepare(ctx context.Context, name, runID string, spec registry.EnvironmentSpec, sink EventSink) error {
	// Stage 1: region probe and mirror selection.
	stageCtx, span := observability.StartStage(ctx, "probe", name)
	start := time.Now()
	region := m.probe.Probe(stageCtx)
	mirrors := m.reg.Mirrors(regionKey(region))
	span.End()
	metrics.RecordStageDuration("probe", true, time.Since(start).Seconds())

	// Stage 2: interpreter runtime.
	sink.emit(Event{Kind: EventProgress, Env: name, RunID: runID, Message: "Downloading Python runtime", Percent: percentRuntimeStage})
	stageCtx, span = observability.StartStage(ctx, "runtime", name)
	start = time.Now()
	interpreter, err := m.runtimes.EnsureRuntime(stageCtx, spec.PythonVersion, mirrors, nil)
	span.End()
	metrics.RecordStageDuration("runtime", err == nil, time.Since(start).Seconds())
	if err != nil {
		return &PrepareError{Name: name, Stage: "runtime", Wrapped: err}
	}

	// Stage 3: virtual environment.
	sink.emit(Event{Kind: EventProgress, Env: name, RunID: runID, Message: "Creating virtual environment", Percent: percentVenvStage})
	stageCtx, span = observability.StartStage(ctx, "venv", name)
	start = time.Now()
	envPath, err := m.venvs.Create(stageCtx, interpreter, name, mirrors.PipIndexURL)
	span.End()
	metrics.RecordStageDuration("venv", err == nil, time.Since(start).Seconds())
	if err != nil {
		return &PrepareError{Name: name, Stage: "venv", Wrapped: err}
	}

	// Stage 4: package installation (best effort).
	sink.emit(Event{Kind: EventProgress, Env: name, RunID: runID, Message: "Installing packages", Percent: percentInstallStage})
	stageCtx, span = observability.StartStage(ctx, "install", name)
	start = time.Now()
	onPackage := func(index, total int, pkg string) {
		percent := percentInstallStage + int(float64(index)/float64(total)*40)
		sink.emit(Event{Kind: EventProgress, Env: name, RunID: runID, Message: "Installing package: " + pkg, Percent: percent})
	}
	report, err := m.installer.Install(stageCtx, m.venvs.PipPath(envPath), spec.Packages, mirrors.PipIndexURL, spec.ExtraIndexURL, onPackage)
	span.End()
	metrics.RecordStageDuration("install", err == nil, time.Since(start).Seconds())
	if err != nil {
		return &PrepareError{Name: name, Stage: "install", Wrapped: err}
	}

	for pkg, pkgErr := range report.Failed {
		sink.emit(Event{
			Kind:    EventWarning,
			Env:     name,
			RunID:   runID,
			Message: fmt.Sprintf("Package %s failed to install", pkg),
			Percent: percentInstallStage + 40,
			Err:     pkgErr,
		})
	}
	return nil
}

// IsReady reports whether name has a provisioned, usable environment.
func (m *Manager) IsReady(name string) bool {
	return m.venvs.IsReady(name)
}

// EnvironmentPath returns the environment directory for name, whether or
// not it exists yet.
func (m *Manager) EnvironmentPath(name string) string {
	return m.venvs.EnvPath(name)
}

// PythonPath returns the interpreter inside name's environment.
//
// # Outputs
//
//   - string: Absolute interpreter path
//   - error: *EnvironmentNotReadyError when the environment is absent
func (m *Manager) PythonPath(name string) (string, error) {
	if !m.venvs.IsReady(name) {
		return "", &EnvironmentNotReadyError{Name: name}
	}
	return m.venvs.PythonPath(m.venvs.EnvPath(name)), nil
}

// RemoveEnvironment deletes name's provisioned files. The registry
// definition is untouched; the environment can be prepared again.
//
// # Outputs
//
//   - error: *ProvisionInProgressError while a prepare holds the name;
//     *EnvironmentNotReadyError when nothing is provisioned
func (m *Manager) RemoveEnvironment(name string) error {
	release, err := m.inFlight.TryAcquire(name)
	if err != nil {
		return &ProvisionInProgressError{Name: name}
	}
	defer release()

	envPath := m.venvs.EnvPath(name)
	if _, err := os.Stat(envPath); err != nil {
		return &EnvironmentNotReadyError{Name: name}
	}

	slog.Info("Removing environment", "name", name, "path", envPath)
	return os.RemoveAll(envPath)
}

// RunInEnvironment executes a Python script inside name's environment with
// inherited stdio.
//
// # Outputs
//
//   - int: The script's exit code
//   - error: *EnvironmentNotReadyError, *ScriptNotFoundError, or a
//     process start failure
func (m *Manager) RunInEnvironment(ctx context.Context, name, scriptPath string, args []string) (int, error) {
	python, err := m.PythonPath(name)
	if err != nil {
		return -1, err
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return -1, &ScriptNotFoundError{Path: scriptPath}
	}

	cmdArgs := append([]string{scriptPath}, args...)
	slog.Info("Running script in environment", "name", name, "script", scriptPath)
	return m.procs.RunAttached(ctx, python, cmdArgs...)
}

// ListAvailableEnvironments returns every registered environment with its
// readiness, sorted by name.
func (m *Manager) ListAvailableEnvironments() []EnvironmentStatus {
	var statuses []EnvironmentStatus
	for _, name := range m.reg.List() {
		spec, err := m.reg.Get(name)
		if err != nil {
			// Registry changed between List and Get; skip the stale name.
			continue
		}
		statuses = append(statuses, EnvironmentStatus{
			Name:          name,
			PythonVersion: spec.PythonVersion,
			Packages:      spec.Packages,
			Ready:         m.venvs.IsReady(name),
		})
	}
	return statuses
}

// EnvironmentInfo returns the detailed view of name, including the actual
// installed packages when the environment is ready.
func (m *Manager) EnvironmentInfo(ctx context.Context, name string) (*EnvironmentInfo, error) {
	spec, err := m.reg.Get(name)
	if err != nil {
		return nil, err
	}

	info := &EnvironmentInfo{
		Name:          name,
		Ready:         m.venvs.IsReady(name),
		PythonVersion: spec.PythonVersion,
		Packages:      spec.Packages,
	}
	if !info.Ready {
		return info, nil
	}

	python := m.venvs.PythonPath(m.venvs.EnvPath(name))
	out, err := m.procs.Run(ctx, python, "-m", "pip", "list", "--format=json")
	if err != nil {
		slog.Warn("Failed to list installed packages", "name", name, "error", err)
		return info, nil
	}
	if err := json.Unmarshal(out, &info.InstalledPackages); err != nil {
		slog.Warn("Failed to parse pip list output", "name", name, "error", err)
		info.InstalledPackages = nil
	}
	return info, nil
}
