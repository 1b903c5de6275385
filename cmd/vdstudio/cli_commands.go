// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/envmgr"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/locks"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/netfetch"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/netprobe"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/pipinstall"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/pyruntime"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/pyvenv"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/registry"
)

var (
	rootCmd = &cobra.Command{
		Use:   "vdstudio",
		Short: "A CLI to manage VisionDeploy Studio's on-demand Python environments",
		Long: `vdstudio provisions isolated Python runtimes and virtual environments
for computer-vision frameworks (YOLOv5/CUDA, YOLOv8/ROCm, PP-YOLO/XPU),
downloading interpreters and packages from region-appropriate mirrors.`,
	}

	envCmd = &cobra.Command{
		Use:   "env",
		Short: "Manage on-demand Python environments",
	}
	envPrepareCmd = &cobra.Command{
		Use:   "prepare [name...]",
		Short: "Provision one or more environments end to end",
		Long: `Downloads the required Python runtime, creates the virtual environment,
and installs the environment's packages. Already-provisioned pieces are
reused; preparing a ready environment is cheap and idempotent.`,
		Run: runEnvPrepare,
	}
	envListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered environments and their readiness",
		Run:   runEnvList,
	}
	envInfoCmd = &cobra.Command{
		Use:   "info [name]",
		Short: "Show an environment's definition and installed packages",
		Args:  cobra.ExactArgs(1),
		Run:   runEnvInfo,
	}
	envRemoveCmd = &cobra.Command{
		Use:   "remove [name]",
		Short: "Delete an environment's provisioned files",
		Long:  `Deletes the virtual environment from disk. The registry definition stays; 'vdstudio env prepare' rebuilds it.`,
		Args:  cobra.ExactArgs(1),
		Run:   runEnvRemove,
	}
	envRunCmd = &cobra.Command{
		Use:   "run [name] [script] [args...]",
		Short: "Run a Python script inside an environment",
		Args:  cobra.MinimumNArgs(2),
		Run:   runEnvRun,
	}
	envAddCmd = &cobra.Command{
		Use:   "add [name]",
		Short: "Register a new environment definition",
		Args:  cobra.ExactArgs(1),
		Run:   runEnvAdd,
	}
	envUpdateCmd = &cobra.Command{
		Use:   "update [name]",
		Short: "Update a registered environment definition",
		Long:  `Updates only the flags you pass. Passing --extra-index-url "" removes the extra index from the definition.`,
		Args:  cobra.ExactArgs(1),
		Run:   runEnvUpdate,
	}

	hardwareCmd = &cobra.Command{
		Use:   "hardware",
		Short: "Detect GPUs and recommend an environment",
		Run:   runHardwareCommand,
	}

	// Global flags.
	workspaceDir string
	regionFlag   string
	jsonOutput   bool
	verbose      bool

	// Prepare flags.
	prepareAll     bool
	prepareAuto    bool
	metricsDump    bool
	bandwidthLimit int

	// Add/update flags.
	flagPythonVersion string
	flagPackages      []string
	flagExtraIndex    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", "", "workspace directory (default $HOME/.vdstudio)")
	rootCmd.PersistentFlags().StringVar(&regionFlag, "region", "auto", "mirror region: auto, global, or mainland")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	envPrepareCmd.Flags().BoolVar(&prepareAll, "all", false, "prepare every registered environment")
	envPrepareCmd.Flags().BoolVar(&prepareAuto, "auto", false, "prepare the environment recommended for this machine's hardware")
	envPrepareCmd.Flags().BoolVar(&metricsDump, "metrics-dump", false, "print Prometheus metrics on exit")
	envPrepareCmd.Flags().IntVar(&bandwidthLimit, "bandwidth-limit", 0, "download bandwidth cap in bytes/second (0 = unlimited)")

	envAddCmd.Flags().StringVar(&flagPythonVersion, "python-version", "", "full Python version, e.g. 3.11.4")
	envAddCmd.Flags().StringSliceVar(&flagPackages, "package", nil, "pip requirement (repeatable)")
	envAddCmd.Flags().StringVar(&flagExtraIndex, "extra-index-url", "", "additional pip index for framework wheels")
	envAddCmd.MarkFlagRequired("python-version")
	envAddCmd.MarkFlagRequired("package")

	envUpdateCmd.Flags().StringVar(&flagPythonVersion, "python-version", "", "full Python version, e.g. 3.11.4")
	envUpdateCmd.Flags().StringSliceVar(&flagPackages, "package", nil, "pip requirement (repeatable, replaces the full list)")
	envUpdateCmd.Flags().StringVar(&flagExtraIndex, "extra-index-url", "", `additional pip index ("" removes it)`)

	envCmd.AddCommand(envPrepareCmd, envListCmd, envInfoCmd, envRemoveCmd, envRunCmd, envAddCmd, envUpdateCmd)
	rootCmd.AddCommand(envCmd, hardwareCmd)
}

// resolveWorkspace returns the workspace directory, creating it if needed.
func resolveWorkspace() (string, error) {
	dir := workspaceDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".vdstudio")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// appContext bundles the wired components for one command invocation.
type appContext struct {
	workspace string
	registry  *registry.Registry
	manager   *envmgr.Manager
	runtimes  pyruntime.RuntimeProvisioner
	procs     procmgr.ProcessManager

	// lock is held for mutating commands; nil otherwise.
	lock *locks.DirLock
}

// buildApp wires the full component graph. When mutating is true the
// workspace lock is acquired so two vdstudio processes cannot provision
// into the same directories at once.
func buildApp(mutating bool) (*appContext, error) {
	workspace, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}

	var lock *locks.DirLock
	if mutating {
		lock = locks.NewDirLock(workspace)
		if err := lock.Acquire(); err != nil {
			return nil, fmt.Errorf("workspace %s is in use by another vdstudio process: %w", workspace, err)
		}
	}

	reg, err := registry.Load(filepath.Join(workspace, registry.DefaultFileName))
	if err != nil {
		if lock != nil {
			lock.Release()
		}
		return nil, err
	}

	network := reg.Network()
	downloader := netfetch.NewHTTPDownloader(netfetch.DownloaderConfig{
		Timeout:        time.Duration(network.TimeoutSeconds) * time.Second,
		Retries:        network.Retries,
		BytesPerSecond: bandwidthLimit,
	})

	procs := procmgr.NewDefaultProcessManager()
	runtimes := pyruntime.NewDefaultRuntimeProvisioner(filepath.Join(workspace, "resources", "python"), downloader, procs)
	venvs := pyvenv.NewDefaultVenvBuilder(filepath.Join(workspace, "environments"), procs)
	installer := pipinstall.NewDefaultInstaller(procs)

	return &appContext{
		workspace: workspace,
		registry:  reg,
		manager:   envmgr.NewManager(reg, regionProbe(), runtimes, venvs, installer, procs),
		runtimes:  runtimes,
		procs:     procs,
		lock:      lock,
	}, nil
}

// close releases the workspace lock if one is held.
func (a *appContext) close() {
	if a.lock != nil {
		a.lock.Release()
	}
}

// regionProbe honors the --region override; "auto" probes the network.
func regionProbe() netprobe.RegionProbe {
	switch regionFlag {
	case "global":
		return &netprobe.StaticRegionProbe{Region: netprobe.RegionGlobal}
	case "mainland":
		return &netprobe.StaticRegionProbe{Region: netprobe.RegionMainland}
	default:
		return netprobe.NewDefaultRegionProbe(netprobe.ProbeConfig{})
	}
}
