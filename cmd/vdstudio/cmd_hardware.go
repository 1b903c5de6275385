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

	"github.com/spf13/cobra"

	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/hardware"
	"github.com/VisionDeployAI/VisionDeployStudio/cmd/vdstudio/internal/procmgr"
)

// hardwareReport is the JSON shape of the hardware command.
type hardwareReport struct {
	Devices     []hardwareDevice `json:"devices"`
	Recommended string           `json:"recommended_environment"`
}

type hardwareDevice struct {
	Vendor string `json:"vendor"`
	Name   string `json:"name"`
	Memory string `json:"memory,omitempty"`
	Driver string `json:"driver,omitempty"`
}

func runHardwareCommand(cmd *cobra.Command, args []string) {
	probe := hardware.NewDefaultProbe(procmgr.NewDefaultProcessManager())
	devices := probe.DetectGPUs(cmd.Context())
	recommended := hardware.RecommendEnvironment(devices)

	if jsonOutput {
		report := hardwareReport{Recommended: recommended}
		for _, d := range devices {
			report.Devices = append(report.Devices, hardwareDevice{
				Vendor: d.Vendor.String(),
				Name:   d.Name,
				Memory: d.Memory,
				Driver: d.Driver,
			})
		}
		if err := outputJSON(report); err != nil {
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Println(render(styleHeader, "Detected graphics hardware"))
	if len(devices) == 0 {
		fmt.Println(render(styleMuted, "  no GPU detected"))
	}
	for _, d := range devices {
		line := fmt.Sprintf("  [%s] %s", d.Vendor, d.Name)
		if d.Memory != "" {
			line += " " + render(styleMuted, d.Memory)
		}
		if d.Driver != "" {
			line += " " + render(styleMuted, "driver "+d.Driver)
		}
		fmt.Println(line)
	}
	printSuccess("recommended environment: %s (prepare it with 'vdstudio env prepare --auto')", recommended)
}
