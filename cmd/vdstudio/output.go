// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0 // Operation completed successfully
	CLIExitError   = 2 // Operation failed
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleHeader  = lipgloss.NewStyle().Bold(true).Underline(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// stdoutIsTerminal reports whether styled output makes sense. Piped output
// gets plain text.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// render applies style only when writing to a terminal.
func render(style lipgloss.Style, text string) string {
	if !stdoutIsTerminal() {
		return text
	}
	return style.Render(text)
}

func printSuccess(format string, args ...interface{}) {
	fmt.Println(render(styleSuccess, "✓ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...interface{}) {
	fmt.Println(render(styleWarn, "! "+fmt.Sprintf(format, args...)))
}

func printError(msg string, err error) {
	fmt.Fprintln(os.Stderr, render(styleError, fmt.Sprintf("✗ %s: %v", msg, err)))
}

// fullError returns the detailed form of errors that carry one, walking
// the wrap chain.
func fullError(err error) string {
	for e := err; e != nil; {
		if d, ok := e.(interface{ FullError() string }); ok {
			return d.FullError()
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return err.Error()
}

// outputJSON writes structured data as indented JSON to stdout.
func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
