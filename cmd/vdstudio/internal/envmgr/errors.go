// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package envmgr

import "fmt"

// ProvisionInProgressError indicates a prepare was rejected because another
// prepare for the same environment is already running.
type ProvisionInProgressError struct {
	// Name is the environment name.
	Name string
}

// Error implements the error interface.
func (e *ProvisionInProgressError) Error() string {
	return fmt.Sprintf("environment %q is already being prepared", e.Name)
}

// FullError returns a detailed message with remediation guidance.
func (e *ProvisionInProgressError) FullError() string {
	return fmt.Sprintf(
		"environment %q is already being prepared by another operation; wait for it to finish and retry",
		e.Name,
	)
}

// EnvironmentNotReadyError indicates an operation that needs a provisioned
// environment found none.
type EnvironmentNotReadyError struct {
	// Name is the environment name.
	Name string
}

// Error implements the error interface.
func (e *EnvironmentNotReadyError) Error() string {
	return fmt.Sprintf("environment %q is not ready", e.Name)
}

// FullError returns a detailed message with remediation guidance.
func (e *EnvironmentNotReadyError) FullError() string {
	return fmt.Sprintf(
		"environment %q is not ready; run 'vdstudio env prepare %s' first",
		e.Name, e.Name,
	)
}

// ScriptNotFoundError indicates a run request for a script path that does
// not exist.
type ScriptNotFoundError struct {
	// Path is the missing script path.
	Path string
}

// Error implements the error interface.
func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("script %s does not exist", e.Path)
}

// PrepareError wraps a stage failure during preparation.
type PrepareError struct {
	// Name is the environment name.
	Name string

	// Stage names the failed stage (probe, runtime, venv, install).
	Stage string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error implements the error interface.
func (e *PrepareError) Error() string {
	return fmt.Sprintf("preparing environment %q failed at %s: %v", e.Name, e.Stage, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *PrepareError) Unwrap() error {
	return e.Wrapped
}
