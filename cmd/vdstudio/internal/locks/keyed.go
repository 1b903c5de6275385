// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package locks provides the two mutual-exclusion primitives the provisioning
code relies on: an in-process keyed lock (one holder per environment name or
runtime version) and a cross-process advisory lock on the base directory.
*/
package locks

import (
	"fmt"
	"sync"
)

// ErrKeyBusy is returned by TryAcquire when the key is already held.
var ErrKeyBusy = fmt.Errorf("key is already locked")

// KeyedLock grants exclusive, non-blocking ownership of string keys.
//
// # Description
//
// The runtimes directory and environments directory are shared namespaces
// keyed by version and name. A half-written runtime or venv directory being
// read by an overlapping call is a real correctness hazard, so exactly one
// goroutine may hold a given key at a time. Acquisition never blocks: a
// second caller for the same key is told the key is busy and must decide
// what to do (the lifecycle facade rejects the call).
//
// # Thread Safety
//
// Safe for concurrent use.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedLock creates an empty keyed lock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]struct{})}
}

// TryAcquire attempts to take ownership of key without blocking.
//
// # Outputs
//
//   - func(): Release function; call exactly once when done. Safe to call
//     from any goroutine.
//   - error: ErrKeyBusy if another holder owns the key.
func (l *KeyedLock) TryAcquire(key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrKeyBusy, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, nil
}

// IsHeld reports whether key is currently owned.
func (l *KeyedLock) IsHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[key]
	return busy
}
