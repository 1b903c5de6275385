// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import "fmt"

// DuplicateEnvironmentError indicates an Add with an already-registered name.
type DuplicateEnvironmentError struct {
	// Name is the conflicting environment name.
	Name string
}

// Error implements the error interface.
func (e *DuplicateEnvironmentError) Error() string {
	return fmt.Sprintf("environment %q is already registered", e.Name)
}

// FullError returns a detailed message with remediation guidance.
func (e *DuplicateEnvironmentError) FullError() string {
	return fmt.Sprintf(
		"environment %q is already registered; use 'vdstudio env update %s' to change it or pick a different name",
		e.Name, e.Name,
	)
}

// UnknownEnvironmentError indicates a lookup of an unregistered name.
type UnknownEnvironmentError struct {
	// Name is the requested environment name.
	Name string

	// Known lists the registered names at lookup time.
	Known []string
}

// Error implements the error interface.
func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("environment %q is not registered", e.Name)
}

// FullError returns a detailed message listing the registered names.
func (e *UnknownEnvironmentError) FullError() string {
	return fmt.Sprintf(
		"environment %q is not registered; known environments: %v. Use 'vdstudio env add' to register a new one",
		e.Name, e.Known,
	)
}

// ConfigFileError indicates the registry file could not be read or parsed.
type ConfigFileError struct {
	// Path is the registry file path.
	Path string

	// Wrapped is the underlying I/O or parse error.
	Wrapped error
}

// Error implements the error interface.
func (e *ConfigFileError) Error() string {
	return fmt.Sprintf("registry file %s: %v", e.Path, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *ConfigFileError) Unwrap() error {
	return e.Wrapped
}
