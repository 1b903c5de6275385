// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package procmgr abstracts external process execution.

Every interpreter, venv and pip invocation in the provisioning code goes
through ProcessManager so that unit tests can run without touching the
operating system. Direct exec.Command calls are not testable; behind an
interface we can capture invocations, simulate exit codes, and verify the
exact command lines the provisioner builds.
*/
package procmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// CommandError wraps a command execution failure with stderr context.
//
// # Description
//
// Provides rich error context for subprocess failures: the command line that
// failed, its exit code, and trimmed stderr. Supports errors.As unwrapping.
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the process exit code (-1 if the process never ran).
	ExitCode int

	// Stderr contains the trimmed standard error output.
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// All methods accept a context.Context; long-running subprocesses (pip
// installs, source builds) are killed when the context is cancelled.
type ProcessManager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Captured stdout
	//   - error: *CommandError with stderr attached on non-zero exit
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithEnv executes a command with extra environment variables
	// appended to the inherited environment. Used for pip invocations that
	// force UTF-8 I/O so non-ASCII package error text survives Windows
	// consoles.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - extraEnv: KEY=VALUE pairs appended to os.Environ()
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Captured stdout
	//   - error: *CommandError with stderr attached on non-zero exit
	RunWithEnv(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error)

	// RunInDir executes a command with the given working directory. Used
	// for source builds where the toolchain assumes it runs inside the
	// extracted tree.
	//
	// # Outputs
	//
	//   - []byte: Captured stdout
	//   - error: *CommandError with stderr attached on non-zero exit
	RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	// RunAttached executes a command with stdout/stderr inherited from the
	// parent process and returns the exit code. Used for "run script in
	// environment" where the caller owns output interpretation.
	//
	// # Outputs
	//
	//   - int: Exit code (0 on success)
	//   - error: Non-nil if the process failed to start or was cancelled;
	//     a plain non-zero exit returns (code, nil)
	RunAttached(ctx context.Context, name string, args ...string) (int, error)

	// LookPath reports whether an executable is resolvable via PATH and
	// returns its absolute path.
	LookPath(name string) (string, bool)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
//
// This is the production implementation. Use MockProcessManager in tests.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a ProcessManager that executes real
// processes.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its stdout.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return pm.RunWithEnv(ctx, nil, name, args...)
}

// RunWithEnv executes a command with extra environment variables.
func (pm *DefaultProcessManager) RunWithEnv(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error) {
	return pm.run(ctx, "", extraEnv, name, args...)
}

// RunInDir executes a command with the given working directory.
func (pm *DefaultProcessManager) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return pm.run(ctx, dir, nil, name, args...)
}

func (pm *DefaultProcessManager) run(ctx context.Context, dir string, extraEnv []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &CommandError{
			Command:  commandLine(name, args),
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Wrapped:  err,
		}
	}

	return stdout.Bytes(), nil
}

// RunAttached executes a command with inherited stdio and returns the exit code.
func (pm *DefaultProcessManager) RunAttached(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Non-zero exit is a result, not a transport failure.
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run %s: %w", name, err)
}

// LookPath reports whether an executable is resolvable via PATH.
func (pm *DefaultProcessManager) LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. Calls are
// recorded for verification. A nil function field makes the corresponding
// method succeed with empty output, which keeps simple happy-path tests
// short.
type MockProcessManager struct {
	// RunFunc is called when Run or RunWithEnv is invoked.
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunAttachedFunc is called when RunAttached is invoked.
	RunAttachedFunc func(ctx context.Context, name string, args ...string) (int, error)

	// LookPathFunc is called when LookPath is invoked.
	LookPathFunc func(name string) (string, bool)

	// Calls records all method invocations for verification.
	Calls []ProcessCall

	mu sync.Mutex
}

// ProcessCall records a single method invocation.
type ProcessCall struct {
	Method   string
	Name     string
	Args     []string
	ExtraEnv []string
	Dir      string
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(ProcessCall{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithEnv delegates to RunFunc and records the call with its environment.
func (m *MockProcessManager) RunWithEnv(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error) {
	m.record(ProcessCall{Method: "RunWithEnv", Name: name, Args: args, ExtraEnv: extraEnv})
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, name, args...)
}

// RunInDir delegates to RunFunc and records the call with its directory.
func (m *MockProcessManager) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.record(ProcessCall{Method: "RunInDir", Name: name, Args: args, Dir: dir})
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, name, args...)
}

// RunAttached delegates to RunAttachedFunc and records the call.
func (m *MockProcessManager) RunAttached(ctx context.Context, name string, args ...string) (int, error) {
	m.record(ProcessCall{Method: "RunAttached", Name: name, Args: args})
	if m.RunAttachedFunc == nil {
		return 0, nil
	}
	return m.RunAttachedFunc(ctx, name, args...)
}

// LookPath delegates to LookPathFunc and records the call.
func (m *MockProcessManager) LookPath(name string) (string, bool) {
	m.record(ProcessCall{Method: "LookPath", Name: name})
	if m.LookPathFunc == nil {
		return name, true
	}
	return m.LookPathFunc(name)
}

func (m *MockProcessManager) record(call ProcessCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
