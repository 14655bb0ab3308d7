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

// Package scall implements the syscall surface spec.md §6 names: Open,
// Read, Write, Close, Fstat, Link, Unlink, Mkdir, Mknod, Chdir, Dup,
// Pipe, Exec. Every call collapses to the same ABI the reference kernel
// uses — a negative return is the only user-observable error, success is
// a non-negative descriptor or zero.
//
// Grounded on original_source/kernel/sysfile.c (sys_open/sys_read/
// sys_write/sys_close/sys_fstat/sys_link/sys_unlink/sys_mkdir/
// sys_mknod/sys_chdir/sys_dup/sys_pipe/create/open_file), translated
// from argument-register fetching to ordinary Go parameters, and from
// the teacher's fs/fs.go FileSystem struct (one type owning every
// syscall-shaped entry point, validating before touching the inode
// layer).
package scall

import (
	"strings"

	"github.com/robledop/xv6/internal/ext2"
	"github.com/robledop/xv6/internal/ftable"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kernel"
	"github.com/robledop/xv6/internal/namei"
)

// Open mode flags, matching the reference kernel's fcntl.h values bit
// for bit so callers can combine them the same way.
const (
	ORdonly = 0x000
	OWronly = 0x001
	ORdwr   = 0x002
	OCreate = 0x200
)

// Syscalls wires the path resolver, ext2 driver, and open-file table
// into one entry point per spec.md §6 call.
type Syscalls struct {
	FS *ext2.Mount
	NI *namei.Resolver
	FT *ftable.Table
}

// New builds a Syscalls surface over an already-mounted filesystem.
func New(fs *ext2.Mount, ni *namei.Resolver, ft *ftable.Table) *Syscalls {
	return &Syscalls{FS: fs, NI: ni, FT: ft}
}

// fileOf resolves fd to its *ftable.File, or nil if fd is out of range,
// unused, or not an ftable.File (argfd's job in the reference kernel).
func fileOf(p *kernel.Process, fd int) *ftable.File {
	ref := p.FD(fd)
	if ref == nil {
		return nil
	}
	f, ok := ref.(*ftable.File)
	if !ok {
		return nil
	}
	return f
}

// Dup duplicates fd onto the lowest free descriptor, or returns -1.
func (s *Syscalls) Dup(p *kernel.Process, fd int) int {
	f := fileOf(p, fd)
	if f == nil {
		return -1
	}
	newFd := p.AllocFD(f)
	if newFd < 0 {
		return -1
	}
	s.FT.Dup(f)
	return newFd
}

// Read reads up to len(buf) bytes from fd.
func (s *Syscalls) Read(p *kernel.Process, fd int, buf []byte) int {
	f := fileOf(p, fd)
	if f == nil {
		return -1
	}
	n, err := s.FT.Read(f, buf)
	if err != nil {
		return -1
	}
	return n
}

// Write writes all of buf to fd.
func (s *Syscalls) Write(p *kernel.Process, fd int, buf []byte) int {
	f := fileOf(p, fd)
	if f == nil {
		return -1
	}
	n, err := s.FT.Write(f, buf)
	if err != nil {
		return -1
	}
	return n
}

// Close releases fd, clearing the process's descriptor slot.
func (s *Syscalls) Close(p *kernel.Process, fd int) int {
	f := fileOf(p, fd)
	if f == nil {
		return -1
	}
	p.ClearFD(fd)
	f.Close()
	return 0
}

// Fstat fills st from fd's inode.
func (s *Syscalls) Fstat(p *kernel.Process, fd int, st *ftable.Stat) int {
	f := fileOf(p, fd)
	if f == nil {
		return -1
	}
	if err := s.FT.Stat(f, st); err != nil {
		return -1
	}
	return 0
}

// Link creates newPath as an additional hard link to oldPath's inode.
// Fails if oldPath names a directory (spec.md's data model has no
// directory hard links).
func (s *Syscalls) Link(p *kernel.Process, oldPath, newPath string) int {
	ip, err := s.NI.Namei(oldPath, p.CurrentCwd())
	if err != nil {
		return -1
	}

	s.FS.IC.Ilock(ip)
	if ip.Type == icache.TypeDir {
		s.FS.IC.IunlockPut(ip)
		return -1
	}
	ip.Nlink++
	s.FS.IC.IUpdate(ip)
	s.FS.IC.Iunlock(ip)

	if !s.linkInto(ip, newPath, p.CurrentCwd()) {
		s.FS.IC.Ilock(ip)
		ip.Nlink--
		s.FS.IC.IUpdate(ip)
		s.FS.IC.IunlockPut(ip)
		return -1
	}

	s.FS.IC.Iput(ip)
	return 0
}

// linkInto resolves newPath's parent and links ip under its final
// component, failing if the parent lives on a different device.
func (s *Syscalls) linkInto(ip *icache.Inode, newPath string, cwd *icache.Inode) bool {
	dp, name, err := s.NI.NameiParent(newPath, cwd)
	if err != nil {
		return false
	}
	s.FS.IC.Ilock(dp)
	if dp.Dev != ip.Dev {
		s.FS.IC.IunlockPut(dp)
		return false
	}
	if err := s.FS.Dirlink(dp, name, ip.Inum); err != nil {
		s.FS.IC.IunlockPut(dp)
		return false
	}
	s.FS.IC.IunlockPut(dp)
	return true
}

// isDirEmpty reports whether dp (locked by the caller) has no entries
// beyond "." and "..".
func (s *Syscalls) isDirEmpty(dp *icache.Inode) bool {
	empty := true
	s.FS.Dirwalk(dp, func(e ext2.DirEntry) bool {
		if e.Name != "." && e.Name != ".." {
			empty = false
			return false
		}
		return true
	})
	return empty
}

// Unlink removes path's directory entry, freeing the inode if this was
// its last link. Refuses to remove a non-empty directory, or "." / "..".
func (s *Syscalls) Unlink(p *kernel.Process, path string) int {
	dp, name, err := s.NI.NameiParent(path, p.CurrentCwd())
	if err != nil {
		return -1
	}
	s.FS.IC.Ilock(dp)

	if name == "." || name == ".." {
		s.FS.IC.IunlockPut(dp)
		return -1
	}

	var off uint32
	ip := s.FS.Dirlookup(dp, name, &off)
	if ip == nil {
		s.FS.IC.IunlockPut(dp)
		return -1
	}
	s.FS.IC.Ilock(ip)

	if ip.Type == icache.TypeDir && !s.isDirEmpty(ip) {
		s.FS.IC.IunlockPut(ip)
		s.FS.IC.IunlockPut(dp)
		return -1
	}

	var zero [4]byte
	if _, err := s.FS.Writei(dp, zero[:], off, 4); err != nil {
		s.FS.IC.IunlockPut(ip)
		s.FS.IC.IunlockPut(dp)
		return -1
	}
	if ip.Type == icache.TypeDir {
		dp.Nlink--
		s.FS.IC.IUpdate(dp)
	}
	s.FS.IC.IunlockPut(dp)

	ip.Nlink--
	s.FS.IC.IUpdate(ip)
	s.FS.IC.IunlockPut(ip)
	return 0
}

// create resolves path's parent, allocates a fresh inode of typ if the
// name doesn't already exist, links it into the parent, and returns it
// locked and referenced. Mirrors sysfile.c's create().
func (s *Syscalls) create(p *kernel.Process, path string, typ icache.Type, major, minor uint32) *icache.Inode {
	dp, name, err := s.NI.NameiParent(path, p.CurrentCwd())
	if err != nil {
		return nil
	}
	s.FS.IC.Ilock(dp)

	if existing := s.FS.Dirlookup(dp, name, nil); existing != nil {
		s.FS.IC.IunlockPut(dp)
		s.FS.IC.Ilock(existing)
		if typ == icache.TypeFile && existing.Type == icache.TypeFile {
			return existing
		}
		s.FS.IC.IunlockPut(existing)
		return nil
	}

	ip := s.FS.Ialloc(typ)
	s.FS.IC.Ilock(ip)
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	s.FS.IC.IUpdate(ip)

	if typ == icache.TypeDir {
		dp.Nlink++
		s.FS.IC.IUpdate(dp)
		if err := s.FS.Dirlink(ip, ".", ip.Inum); err != nil {
			panic("scall: create: linking .: " + err.Error())
		}
		if err := s.FS.Dirlink(ip, "..", dp.Inum); err != nil {
			panic("scall: create: linking ..: " + err.Error())
		}
	}

	if err := s.FS.Dirlink(dp, name, ip.Inum); err != nil {
		panic("scall: create: linking into parent: " + err.Error())
	}
	s.FS.IC.IunlockPut(dp)

	return ip
}

// Mkdir creates a new directory.
func (s *Syscalls) Mkdir(p *kernel.Process, path string) int {
	ip := s.create(p, path, icache.TypeDir, 0, 0)
	if ip == nil {
		return -1
	}
	s.FS.IC.IunlockPut(ip)
	return 0
}

// Mknod creates a new device special file.
func (s *Syscalls) Mknod(p *kernel.Process, path string, major, minor uint32) int {
	ip := s.create(p, path, icache.TypeDev, major, minor)
	if ip == nil {
		return -1
	}
	s.FS.IC.IunlockPut(ip)
	return 0
}

// Open opens path under mode, returning a new descriptor or -1.
func (s *Syscalls) Open(p *kernel.Process, path string, mode int) int {
	var ip *icache.Inode
	if mode&OCreate != 0 {
		ip = s.create(p, path, icache.TypeFile, 0, 0)
		if ip == nil {
			return -1
		}
	} else {
		var err error
		ip, err = s.NI.Namei(path, p.CurrentCwd())
		if err != nil {
			return -1
		}
		s.FS.IC.Ilock(ip)
		if ip.Type == icache.TypeDir && mode != ORdonly {
			s.FS.IC.IunlockPut(ip)
			return -1
		}
	}

	f := s.FT.Alloc()
	if f == nil {
		s.FS.IC.IunlockPut(ip)
		return -1
	}
	fd := p.AllocFD(f)
	if fd < 0 {
		f.Close()
		s.FS.IC.IunlockPut(ip)
		return -1
	}
	s.FS.IC.Iunlock(ip)

	f.Kind = ftable.KindInode
	f.Ip = ip
	f.Off = 0
	f.Readable = mode&OWronly == 0
	f.Writable = mode&OWronly != 0 || mode&ORdwr != 0
	return fd
}

// Chdir changes the process's current directory to path.
func (s *Syscalls) Chdir(p *kernel.Process, path string) int {
	ip, err := s.NI.Namei(path, p.CurrentCwd())
	if err != nil {
		return -1
	}
	s.FS.IC.Ilock(ip)
	if ip.Type != icache.TypeDir {
		s.FS.IC.IunlockPut(ip)
		return -1
	}
	s.FS.IC.Iunlock(ip)

	old := p.CurrentCwd()
	p.SetCwd(ip)
	s.FS.IC.Iput(old)
	return 0
}

// Pipe creates a connected read/write descriptor pair.
func (s *Syscalls) Pipe(p *kernel.Process) (rfd, wfd int, rc int) {
	pipe := ftable.NewPipe()

	rf := s.FT.Alloc()
	wf := s.FT.Alloc()
	if rf == nil || wf == nil {
		if rf != nil {
			rf.Close()
		}
		if wf != nil {
			wf.Close()
		}
		return 0, 0, -1
	}
	rf.Kind, wf.Kind = ftable.KindPipe, ftable.KindPipe
	rf.Pipe, wf.Pipe = pipe, pipe
	rf.Readable, rf.Writable = true, false
	wf.Readable, wf.Writable = false, true

	fd0 := p.AllocFD(rf)
	fd1 := p.AllocFD(wf)
	if fd0 < 0 || fd1 < 0 {
		if fd0 >= 0 {
			p.ClearFD(fd0)
		}
		rf.Close()
		wf.Close()
		return 0, 0, -1
	}
	return fd0, fd1, 0
}

// Exec is out of scope: spec.md §1 places process-image loading outside
// this core's five subsystems. This validates its arguments and always
// fails, the way a syscall table entry for an unimplemented call would.
func (s *Syscalls) Exec(p *kernel.Process, path string, argv []string) int {
	if strings.TrimSpace(path) == "" {
		return -1
	}
	return -1
}
