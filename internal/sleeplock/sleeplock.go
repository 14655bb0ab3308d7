// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sleeplock implements the long-term, blocking lock used for
// per-buffer and per-inode contents: the one kind of lock in this system
// that may be held across another blocking operation, as opposed to the
// spinlocks (plain sync.Mutex elsewhere in this module) that guard only
// table membership and reference counts.
//
// The kernel this core is modeled on implements a sleep lock as a
// spinlock-guarded flag plus a sleep channel; here a buffered channel of
// capacity one plays the same role as the flag-plus-wakeup, which is the
// idiomatic Go rendering of a mutex that must also expose ownership
// diagnostics (Holding).
package sleeplock

import "sync/atomic"

// Lock is a long-term lock that blocks its holder's goroutine rather than
// spinning.
type Lock struct {
	ch   chan struct{}
	held atomic.Bool
}

// NewLock returns an unlocked Lock.
func NewLock() *Lock {
	l := &Lock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// Acquire blocks until the lock is held by the caller.
func (l *Lock) Acquire() {
	<-l.ch
	l.held.Store(true)
}

// Release relinquishes the lock. Panics if the caller does not hold it,
// mirroring the source's "releasesleep of an unheld lock" fatal error.
func (l *Lock) Release() {
	if !l.held.Load() {
		panic("sleeplock: release of unheld lock")
	}
	l.held.Store(false)
	l.ch <- struct{}{}
}

// Holding reports whether the lock is currently held by some goroutine.
// Like the source's holdingsleep, this is a diagnostic, not a safe basis
// for control flow under contention.
func (l *Lock) Holding() bool {
	return l.held.Load()
}
