// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/envmgr"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/hardware"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/metrics"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/registry"
)

// maxParallelPrepares bounds concurrent environment preparations; each one
// can spawn a compiler or saturate the downlink on its own.
const maxParallelPrepares = 2

func runEnvPrepare(cmd *cobra.Command, args []string) {
	app, err := buildApp(true)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	// Long preparations can outlive a config edit from the GUI or another
	// terminal; hot-reload the registry so later targets see the edit.
	stopWatch := startRegistryWatch(cmd.Context(), app.registry)
	defer stopWatch()

	names, err := prepareTargets(cmd.Context(), app, args)
	if err != nil {
		printError("cannot resolve environments to prepare", err)
		os.Exit(CLIExitError)
	}
	if len(names) == 0 {
		printWarning("nothing to prepare; pass a name, --all, or --auto")
		return
	}

	group, ctx := errgroup.WithContext(cmd.Context())
	group.SetLimit(maxParallelPrepares)
	for _, name := range names {
		name := name
		group.Go(func() error {
			return prepareOne(ctx, app, name)
		})
	}
	err = group.Wait()

	if metricsDump {
		if dumpErr := metrics.DumpText(os.Stdout); dumpErr != nil {
			printError("failed to dump metrics", dumpErr)
		}
	}
	if err != nil {
		os.Exit(CLIExitError)
	}
}

// startRegistryWatch runs the registry file watcher on a goroutine. The
// returned stop function cancels the watch and waits for it to exit.
func startRegistryWatch(ctx context.Context, reg *registry.Registry) (stop func()) {
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := reg.Watch(watchCtx); err != nil {
			slog.Warn("Registry watch unavailable; config edits need a rerun", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// prepareTargets resolves the environment names to prepare from args and
// the --all/--auto flags.
func prepareTargets(ctx context.Context, app *appContext, args []string) ([]string, error) {
	switch {
	case prepareAll:
		return app.registry.List(), nil
	case prepareAuto:
		devices := hardware.NewDefaultProbe(app.procs).DetectGPUs(ctx)
		name := hardware.RecommendEnvironment(devices)
		printSuccess("hardware recommendation: %s", name)
		return []string{name}, nil
	default:
		return args, nil
	}
}

// prepareOne runs a single preparation with spinner-driven progress.
func prepareOne(ctx context.Context, app *appContext, name string) error {
	spinner := NewSpinner(SpinnerConfig{Message: fmt.Sprintf("[%s] starting", name)})
	if stdoutIsTerminal() {
		spinner.Start()
	}
	defer spinner.Stop()

	var warnings []string
	sink := func(e envmgr.Event) {
		switch e.Kind {
		case envmgr.EventWarning:
			warnings = append(warnings, e.Message)
		case envmgr.EventFailed:
			// The returned error is reported below.
		default:
			spinner.SetMessage(fmt.Sprintf("[%s] %s (%d%%)", name, e.Message, e.Percent))
		}
	}

	err := app.manager.PrepareEnvironment(ctx, name, sink)
	spinner.Stop()

	for _, w := range warnings {
		printWarning("%s: %s", name, w)
	}
	if err != nil {
		printError("failed to prepare "+name, fmt.Errorf("%s", fullError(err)))
		return err
	}
	printSuccess("environment %s is ready", name)
	return nil
}

func runEnvList(cmd *cobra.Command, args []string) {
	app, err := buildApp(false)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	statuses := app.manager.ListAvailableEnvironments()
	if jsonOutput {
		if err := outputJSON(statuses); err != nil {
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Println(render(styleHeader, "Registered environments"))
	for _, s := range statuses {
		ready := render(styleMuted, "not provisioned")
		if s.Ready {
			ready = render(styleSuccess, "ready")
		}
		fmt.Printf("  %-16s python %-8s %2d packages  %s\n", s.Name, s.PythonVersion, len(s.Packages), ready)
	}
}

func runEnvInfo(cmd *cobra.Command, args []string) {
	app, err := buildApp(false)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	info, err := app.manager.EnvironmentInfo(cmd.Context(), args[0])
	if err != nil {
		printError("failed to inspect environment", fmt.Errorf("%s", fullError(err)))
		os.Exit(CLIExitError)
	}

	if jsonOutput {
		if err := outputJSON(info); err != nil {
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Println(render(styleHeader, info.Name))
	fmt.Printf("  python:  %s\n", info.PythonVersion)
	fmt.Printf("  ready:   %v\n", info.Ready)
	fmt.Printf("  declared packages:\n")
	for _, pkg := range info.Packages {
		fmt.Printf("    %s\n", pkg)
	}
	if info.Ready {
		fmt.Printf("  installed packages: %d\n", len(info.InstalledPackages))
		for _, pkg := range info.InstalledPackages {
			fmt.Printf("    %s %s\n", pkg.Name, render(styleMuted, pkg.Version))
		}
	}
}

func runEnvRemove(cmd *cobra.Command, args []string) {
	app, err := buildApp(true)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	if err := app.manager.RemoveEnvironment(args[0]); err != nil {
		printError("failed to remove environment", fmt.Errorf("%s", fullError(err)))
		os.Exit(CLIExitError)
	}
	printSuccess("environment %s removed", args[0])
}

func runEnvRun(cmd *cobra.Command, args []string) {
	app, err := buildApp(false)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	name, script := args[0], args[1]
	code, err := app.manager.RunInEnvironment(cmd.Context(), name, script, args[2:])
	if err != nil {
		printError("failed to run script", fmt.Errorf("%s", fullError(err)))
		os.Exit(CLIExitError)
	}
	// Propagate the script's own exit code.
	os.Exit(code)
}

func runEnvAdd(cmd *cobra.Command, args []string) {
	app, err := buildApp(true)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	spec := registry.EnvironmentSpec{
		PythonVersion: flagPythonVersion,
		Packages:      flagPackages,
		ExtraIndexURL: flagExtraIndex,
	}
	if err := app.registry.Add(args[0], spec); err != nil {
		printError("failed to add environment", fmt.Errorf("%s", fullError(err)))
		os.Exit(CLIExitError)
	}
	printSuccess("environment %s registered (python %s, %d packages)", args[0], spec.PythonVersion, len(spec.Packages))
}

func runEnvUpdate(cmd *cobra.Command, args []string) {
	app, err := buildApp(true)
	if err != nil {
		printError("failed to initialize", err)
		os.Exit(CLIExitError)
	}
	defer app.close()

	var req registry.UpdateRequest
	if cmd.Flags().Changed("python-version") {
		req.PythonVersion = &flagPythonVersion
	}
	if cmd.Flags().Changed("package") {
		req.Packages = flagPackages
	}
	if cmd.Flags().Changed("extra-index-url") {
		req.ExtraIndexURL = &flagExtraIndex
	}
	if req.PythonVersion == nil && req.Packages == nil && req.ExtraIndexURL == nil {
		printWarning("no flags passed; nothing to update")
		return
	}

	if err := app.registry.Update(args[0], req); err != nil {
		printError("failed to update environment", fmt.Errorf("%s", fullError(err)))
		os.Exit(CLIExitError)
	}

	var changed []string
	if req.PythonVersion != nil {
		changed = append(changed, "python-version")
	}
	if req.Packages != nil {
		changed = append(changed, "packages")
	}
	if req.ExtraIndexURL != nil {
		changed = append(changed, "extra-index-url")
	}
	printSuccess("environment %s updated (%s)", args[0], strings.Join(changed, ", "))
}
