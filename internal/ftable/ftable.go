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

// Package ftable implements the global open-file table (spec.md §4.4): a
// fixed-size array of File objects behind one mutex, plus a device switch
// (DevSwitch) keyed by major number. Table.Read and Table.Write do not
// consult the device switch: a device inode is read and written through
// Readi/Writei like a regular file.
//
// Grounded on original_source/kernel/file.c (filealloc, filedup,
// fileclose, filestat, fileread, filewrite).
package ftable

import (
	"sync"

	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kerrors"
	"github.com/robledop/xv6/internal/logger"
)

// Kind is a File's variant.
type Kind int

const (
	KindNone Kind = iota
	KindPipe
	KindInode
)

// Driver is the subset of the ext2 driver ftable needs: reading and
// writing through a locked inode. Stat reads the inode's fields itself.
type Driver interface {
	Readi(ip *icache.Inode, dst []byte, off uint32, n uint32) (uint32, error)
	Writei(ip *icache.Inode, src []byte, off uint32, n uint32) (uint32, error)
}

// Stat mirrors spec.md's stat(2) surface: dev/ino/type/nlink/size.
type Stat struct {
	Dev   uint32
	Ino   uint32
	Type  icache.Type
	Nlink uint16
	Size  uint32
}

// File is one open-file-table entry.
type File struct {
	Kind     Kind
	Readable bool
	Writable bool

	Pipe *Pipe
	Ip   *icache.Inode
	Off  uint32

	refcnt int
	table  *Table
}

// Close releases f's reference through its owning table, so a File can
// satisfy kernel.FileRef without that package importing ftable.
func (f *File) Close() {
	f.table.Close(f)
}

// filewriteChunk bounds a single filewrite iteration, in bytes. The
// reference kernel derives this from its log's transaction budget
// (MAXOPBLOCKS−1−1−2)/2 blocks of 512 bytes; this core has no log, but
// keeps the same chunk size so writei is never asked to cross more
// indirect-block allocations in one call than the source ever did.
const filewriteChunk = ((32 - 1 - 1 - 2) / 2) * 512

// Table is the fixed-size, mutex-guarded open-file table.
type Table struct {
	mu     sync.Mutex
	files  []*File
	ic     *icache.Cache
	driver Driver
}

// New builds a Table of size slots.
func New(ic *icache.Cache, driver Driver, size int) *Table {
	t := &Table{ic: ic, driver: driver}
	files := make([]*File, size)
	for i := range files {
		files[i] = &File{table: t}
	}
	t.files = files
	return t
}

// Alloc returns a freshly claimed File with refcount 1, or nil if every
// slot is in use (spec.md §4.4: filealloc returns null rather than
// panicking, since running out of file slots is a resource-exhaustion
// error surfaced as −1).
func (t *Table) Alloc() *File {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.files {
		if f.refcnt == 0 {
			f.refcnt = 1
			f.Kind = KindNone
			return f
		}
	}
	return nil
}

// Dup increments f's reference count. Panics if f isn't open, mirroring
// filedup's precondition.
func (t *Table) Dup(f *File) *File {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.refcnt < 1 {
		panic("ftable: dup of unopened file")
	}
	f.refcnt++
	return f
}

// Close decrements f's reference count, releasing its pipe or inode
// reference when the count reaches zero.
func (t *Table) Close(f *File) {
	t.mu.Lock()
	if f.refcnt < 1 {
		t.mu.Unlock()
		panic("ftable: close of unopened file")
	}
	f.refcnt--
	if f.refcnt > 0 {
		t.mu.Unlock()
		return
	}
	snapshot := *f
	f.Kind = KindNone
	f.Ip = nil
	f.Pipe = nil
	t.mu.Unlock()

	switch snapshot.Kind {
	case KindPipe:
		snapshot.Pipe.Close(snapshot.Writable)
	case KindInode:
		t.ic.Iput(snapshot.Ip)
	}
}

// Stat fills st from f's inode. Only valid for inode-backed files.
func (t *Table) Stat(f *File, st *Stat) error {
	if f.Kind != KindInode {
		return kerrors.ErrInvalidArg
	}
	t.ic.Ilock(f.Ip)
	st.Dev = f.Ip.Dev
	st.Ino = f.Ip.Inum
	st.Type = f.Ip.Type
	st.Nlink = f.Ip.Nlink
	st.Size = f.Ip.Size
	t.ic.Iunlock(f.Ip)
	return nil
}

// Read reads up to len(buf) bytes from f, advancing its offset.
func (t *Table) Read(f *File, buf []byte) (int, error) {
	if !f.Readable {
		return 0, kerrors.ErrReadOnlyFD
	}
	if f.Kind == KindPipe {
		return f.Pipe.Read(buf)
	}
	if f.Kind != KindInode {
		panic("ftable: read of closed file")
	}

	t.ic.Ilock(f.Ip)
	n, err := t.driver.Readi(f.Ip, buf, f.Off, uint32(len(buf)))
	if err == nil {
		f.Off += n
	}
	t.ic.Iunlock(f.Ip)
	return int(n), err
}

// Write writes all of buf to f in filewriteChunk-sized pieces, advancing
// its offset. A short write from the driver is fatal (spec.md §4.4).
func (t *Table) Write(f *File, buf []byte) (int, error) {
	if !f.Writable {
		return 0, kerrors.ErrWriteOnlyFD
	}
	if f.Kind == KindPipe {
		return f.Pipe.Write(buf)
	}
	if f.Kind != KindInode {
		panic("ftable: write of closed file")
	}

	total := 0
	for total < len(buf) {
		chunk := len(buf) - total
		if chunk > filewriteChunk {
			chunk = filewriteChunk
		}

		t.ic.Ilock(f.Ip)
		n, err := t.driver.Writei(f.Ip, buf[total:total+chunk], f.Off, uint32(chunk))
		if err == nil {
			f.Off += n
		}
		t.ic.Iunlock(f.Ip)

		if err != nil {
			return total, err
		}
		if int(n) != chunk {
			logger.Fatalf("ftable: short write: wrote %d of %d requested", n, chunk)
		}
		total += int(n)
	}
	return total, nil
}
