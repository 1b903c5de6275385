// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package envmgr

// EventKind discriminates progress events.
type EventKind int

const (
	// EventStarted opens a preparation run.
	EventStarted EventKind = iota

	// EventProgress reports forward motion within a run.
	EventProgress

	// EventWarning reports a non-fatal problem (a package that failed to
	// install); the run continues.
	EventWarning

	// EventFailed terminates a run unsuccessfully.
	EventFailed

	// EventCompleted terminates a run successfully.
	EventCompleted
)

// String returns the kind as a human-readable string.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventWarning:
		return "warning"
	case EventFailed:
		return "failed"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is one progress notification from a preparation run.
type Event struct {
	// Kind discriminates the event.
	Kind EventKind

	// Env is the environment name.
	Env string

	// RunID identifies the preparation run the event belongs to.
	RunID string

	// Message is the human-readable description.
	Message string

	// Percent is overall completion 0-100. Failed events carry -1.
	// Warning events carry the run's current percent.
	Percent int

	// Err is set on Warning and Failed events.
	Err error
}

// EventSink consumes progress events. A nil sink is valid everywhere events
// are emitted.
type EventSink func(Event)

// emit calls the sink if non-nil.
func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}

// LegacyAdapter converts an EventSink consumer from the historical
// (message, percent) callback shape. Failed events arrive as percent -1,
// completion as percent 100, matching what older desktop frontends expect.
func LegacyAdapter(cb func(message string, percent int)) EventSink {
	if cb == nil {
		return nil
	}
	return func(e Event) {
		cb(e.Message, e.Percent)
	}
}
