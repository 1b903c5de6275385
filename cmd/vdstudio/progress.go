// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ProgressIndicator is the feedback surface for long provisioning runs.
//
// # Description
//
// A runtime download or source build can sit on one step for minutes; the
// indicator keeps the terminal visibly alive while stage banners and percent
// updates stream in through SetMessage.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProgressIndicator interface {
	// Start begins the progress indication.
	Start()

	// Stop halts the progress indication.
	Stop()

	// SetMessage updates the displayed message.
	SetMessage(message string)

	// IsRunning returns whether the indicator is active.
	IsRunning() bool
}

// SpinnerConfig configures spinner behavior.
type SpinnerConfig struct {
	// Message is the initial text displayed next to the spinner, before
	// the first provisioning event arrives.
	Message string

	// Interval is the time between frame updates.
	// Default: 100ms
	Interval time.Duration

	// Frames are the animation characters.
	// Default: Braille dots (⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏)
	Frames []string

	// Writer is where output is written. Stderr by default, so piped
	// stdout (--json) stays clean.
	Writer io.Writer
}

// DefaultSpinnerConfig returns sensible defaults.
func DefaultSpinnerConfig() SpinnerConfig {
	return SpinnerConfig{
		Message:  "Preparing...",
		Interval: 100 * time.Millisecond,
		Frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Writer:   os.Stderr,
	}
}

// Spinner provides animated progress feedback for CLI operations.
//
// # Thread Safety
//
// Spinner is safe for concurrent use. With parallel prepares, each target
// gets its own spinner but they share a Writer; interleaved frames are
// tolerated, not garbled (every frame rewrites the whole line).
type Spinner struct {
	config SpinnerConfig

	mu      sync.Mutex
	message string
	running bool
	done    chan struct{}
}

// NewSpinner creates a spinner with the given configuration. Zero config
// fields fall back to defaults.
func NewSpinner(config SpinnerConfig) *Spinner {
	defaults := DefaultSpinnerConfig()
	if config.Message == "" {
		config.Message = defaults.Message
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if len(config.Frames) == 0 {
		config.Frames = defaults.Frames
	}
	if config.Writer == nil {
		config.Writer = defaults.Writer
	}
	return &Spinner{config: config, message: config.Message}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	go s.spin(s.done)
}

// Stop halts the animation and clears the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	done := s.done
	s.mu.Unlock()

	close(done)
	fmt.Fprint(s.config.Writer, "\r\033[K")
}

// SetMessage updates the displayed message.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// IsRunning returns whether the spinner is active.
func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Spinner) spin(done chan struct{}) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			message := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.config.Writer, "\r\033[K%s %s", s.config.Frames[frame%len(s.config.Frames)], message)
			frame++
		}
	}
}

// Compile-time interface compliance check.
var _ ProgressIndicator = (*Spinner)(nil)
