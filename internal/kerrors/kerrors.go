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

// Package kerrors collects the sentinel errors the filesystem core
// returns for user-observable failures, and the Corruption type used to
// panic on on-disk invariant violations (spec.md §7).
//
// There is no errno in this system: every syscall collapses whatever it
// gets back from this package to a single −1, matching spec.md's "a
// negative return is the only user-observable error." These sentinels
// exist so internal callers and tests can still distinguish failure
// modes with errors.Is before that collapse happens — the same role
// gcsfuse's fs/gcsfuse_errors package plays ahead of its own FUSE errno
// translation.
package kerrors

import "fmt"

// User-input and resource-exhaustion errors: surfaced as −1 per spec.md
// §7, never panics.
var (
	ErrNotFound      = fmt.Errorf("kerrors: no such file or directory")
	ErrExists        = fmt.Errorf("kerrors: file exists")
	ErrNotDir        = fmt.Errorf("kerrors: not a directory")
	ErrIsDir         = fmt.Errorf("kerrors: is a directory")
	ErrNameTooLong   = fmt.Errorf("kerrors: name too long")
	ErrNoSpace       = fmt.Errorf("kerrors: no space left on device")
	ErrNoInodes      = fmt.Errorf("kerrors: no free inodes")
	ErrTooManyFiles  = fmt.Errorf("kerrors: too many open files")
	ErrInvalidArg    = fmt.Errorf("kerrors: invalid argument")
	ErrNotEmpty      = fmt.Errorf("kerrors: directory not empty")
	ErrReadOnlyFD    = fmt.Errorf("kerrors: file descriptor not open for reading")
	ErrWriteOnlyFD   = fmt.Errorf("kerrors: file descriptor not open for writing")
	ErrBadFD         = fmt.Errorf("kerrors: bad file descriptor")
	ErrNoSuchDevice  = fmt.Errorf("kerrors: no such device")
	ErrCrossesLink   = fmt.Errorf("kerrors: operation would cross link boundary")
	ErrLinkIsDir     = fmt.Errorf("kerrors: cannot link a directory")
	ErrUnlinkDotDir  = fmt.Errorf("kerrors: cannot unlink . or ..")
)

// Corruption marks an on-disk invariant violation: a directory record
// with an impossible rec_len, a double bfree, a block-bitmap bit
// expected set but clear. spec.md §7 treats these as fatal; callers
// recover this panic only at a process/test boundary that intends to
// report the corruption and stop, never to continue servicing requests.
type Corruption struct {
	Op  string
	Msg string
}

func (c *Corruption) Error() string {
	return fmt.Sprintf("kerrors: corruption in %s: %s", c.Op, c.Msg)
}

// Panic raises a Corruption for op, wrapping msg.
func Panic(op, msg string) {
	panic(&Corruption{Op: op, Msg: msg})
}

// ConcurrencyMisuse marks a locking-discipline violation: releasing a
// lock the caller doesn't hold, double-freeing a slot, acquiring an
// already-held non-reentrant lock from the same path. Always fatal.
type ConcurrencyMisuse struct {
	Msg string
}

func (c *ConcurrencyMisuse) Error() string {
	return fmt.Sprintf("kerrors: concurrency misuse: %s", c.Msg)
}
