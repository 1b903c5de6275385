// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/observability"
)

// version is stamped at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(CLIExitError)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		shutdown, err := observability.Setup(cmd.Context(), version)
		if err != nil {
			slog.Warn("Tracing setup failed, continuing without it", "error", err)
			return
		}
		rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
			if err := shutdown(context.Background()); err != nil {
				slog.Debug("Trace flush failed", "error", err)
			}
		}
	}
}
