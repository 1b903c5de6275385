// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package locks

import (
	"errors"
	"sync"
	"testing"
)

func TestKeyedLock_AcquireAndRelease(t *testing.T) {
	l := NewKeyedLock()

	release, err := l.TryAcquire("yolov5-cuda")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if !l.IsHeld("yolov5-cuda") {
		t.Error("key should be held after acquire")
	}

	release()
	if l.IsHeld("yolov5-cuda") {
		t.Error("key should be free after release")
	}
}

func TestKeyedLock_SecondAcquireRejected(t *testing.T) {
	l := NewKeyedLock()

	release, err := l.TryAcquire("demo")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer release()

	if _, err := l.TryAcquire("demo"); !errors.Is(err, ErrKeyBusy) {
		t.Errorf("expected ErrKeyBusy, got %v", err)
	}
}

func TestKeyedLock_DifferentKeysIndependent(t *testing.T) {
	l := NewKeyedLock()

	r1, err := l.TryAcquire("yolov5-cuda")
	if err != nil {
		t.Fatalf("acquire yolov5-cuda: %v", err)
	}
	defer r1()

	r2, err := l.TryAcquire("ppyolo-xpu")
	if err != nil {
		t.Fatalf("acquire ppyolo-xpu should not conflict: %v", err)
	}
	defer r2()
}

func TestKeyedLock_ReleaseIdempotent(t *testing.T) {
	l := NewKeyedLock()

	release, err := l.TryAcquire("demo")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()
	release() // second call must not panic or free someone else's lock

	r2, err := l.TryAcquire("demo")
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	release() // stale release from the first holder
	if !l.IsHeld("demo") {
		t.Error("stale release must not free the second holder's lock")
	}
	r2()
}

func TestKeyedLock_ConcurrentSingleWinner(t *testing.T) {
	l := NewKeyedLock()

	const goroutines = 32
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, err := l.TryAcquire("contended"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				release()
			}
		}()
	}
	wg.Wait()

	if wins == 0 {
		t.Error("at least one goroutine should win the lock")
	}
}
