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

// Package kernel stubs the process-management collaborator that spec.md
// §1 and §6 name but place out of scope: the owner of a process's current
// directory and open-file table. The real scheduler, trap layer, and
// process lifecycle live outside this core; this package supplies just
// enough of their surface — Cwd and Ofile — for the filesystem stack to be
// exercised and tested on its own. It has no sleep/wakeup primitive.
package kernel

import (
	"sync"

	"github.com/robledop/xv6/internal/icache"
)

// NOFILE is the number of file-descriptor slots per process (spec.md §6:
// "open-file table per process (≈16 slots)").
const NOFILE = 16

// Process is the minimal per-process state the filesystem core touches.
type Process struct {
	mu sync.Mutex

	// Cwd is the inode reference for the process's current directory.
	// The path resolver duplicates it (Idup) before walking a relative
	// path.
	Cwd *icache.Inode

	// Ofile maps small integers (file descriptors) to file-table
	// entries. A descriptor is open iff its slot is non-nil.
	Ofile [NOFILE]FileRef

	// Killed marks a killed process. Nothing in this module sets it, and
	// the syscall layer does not check it.
	Killed bool
}

// FileRef is satisfied by *ftable.File. Declared as an interface rather
// than a direct dependency on ftable so this package only commits to the
// one operation (Close) it actually performs on a process's open files.
type FileRef interface {
	Close()
}

// SetCwd replaces the process's current directory under the process
// lock. The caller is responsible for any inode refcount bookkeeping
// (idup/iput) around the swap.
func (p *Process) SetCwd(ip *icache.Inode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cwd = ip
}

// CurrentCwd returns the process's current directory inode.
func (p *Process) CurrentCwd() *icache.Inode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Cwd
}

// AllocFD finds the lowest-numbered free descriptor slot and installs f
// there, returning the descriptor number or -1 if the table is full.
func (p *Process) AllocFD(f FileRef) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fd := 0; fd < NOFILE; fd++ {
		if p.Ofile[fd] == nil {
			p.Ofile[fd] = f
			return fd
		}
	}
	return -1
}

// FD returns the file reference installed at fd, or nil if fd is out of
// range or unused.
func (p *Process) FD(fd int) FileRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= NOFILE {
		return nil
	}
	return p.Ofile[fd]
}

// ClearFD frees descriptor fd without closing its file; the caller must
// already have done so (or be transferring ownership, as dup2-style
// calls would).
func (p *Process) ClearFD(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd >= 0 && fd < NOFILE {
		p.Ofile[fd] = nil
	}
}
