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

package ext2

import (
	"github.com/robledop/xv6/internal/ext2/layout"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kerrors"
)

// Dirlookup scans dp's directory content for an entry named name,
// returning a referenced (unlocked) inode for it via the icache. Returns
// nil if not found. If poff is non-nil, the entry's byte offset within
// dp is written to it. dp must already be locked by the caller.
//
// Panics on a corrupt rec_len (spec.md §4.2: "if rec_len < 8 or > 1024,
// panic").
func (m *Mount) Dirlookup(dp *icache.Inode, name string, poff *uint32) *icache.Inode {
	header := make([]byte, layout.DirEntryHeaderSize)
	maxName := make([]byte, layout.MaxNameLen)

	for off := uint32(0); off < dp.Size; {
		n, err := m.Readi(dp, header, off, layout.DirEntryHeaderSize)
		if err != nil || n != layout.DirEntryHeaderSize {
			kerrors.Panic("Dirlookup", "short read of directory entry header")
		}
		e, err := layout.DecodeDirEntry(header, 0)
		if err != nil {
			kerrors.Panic("Dirlookup", err.Error())
		}
		if int(e.RecLen) < layout.DirEntryHeaderSize || int(e.RecLen) > layout.BlockSize {
			kerrors.Panic("Dirlookup", "corrupt rec_len")
		}

		if e.Inode == 0 {
			off += uint32(e.RecLen)
			continue
		}

		if e.NameLen > 0 {
			if _, err := m.Readi(dp, maxName[:e.NameLen], off+layout.DirEntryHeaderSize, uint32(e.NameLen)); err != nil {
				kerrors.Panic("Dirlookup", "short read of directory entry name")
			}
			e.Name = string(maxName[:e.NameLen])
		}

		if e.Name == name {
			if poff != nil {
				*poff = off
			}
			return m.IC.Iget(m.Dev, e.Inode)
		}
		off += uint32(e.RecLen)
	}
	return nil
}

// Dirlink appends a new directory entry {name -> inum} to dp. Fails if
// name already exists. dp must already be locked by the caller.
func (m *Mount) Dirlink(dp *icache.Inode, name string, inum uint32) error {
	if existing := m.Dirlookup(dp, name, nil); existing != nil {
		m.IC.Iput(existing)
		return kerrors.ErrExists
	}
	if len(name) > layout.MaxNameLen {
		return kerrors.ErrNameTooLong
	}

	recLen := layout.DirRecLen(len(name))

	// Always append past the current end, per spec.md §4.2. Deleted
	// entries left behind by Unlink are skipped but never reclaimed —
	// a known limitation (spec.md §9), not something to fix here.
	off := dp.Size

	buf := make([]byte, recLen)
	e := &layout.DirEntry{Inode: inum, RecLen: recLen, FileType: layout.FileTypeUnknown, Name: name}
	if err := layout.EncodeDirEntry(buf, 0, e); err != nil {
		return err
	}

	dp.Size = off + uint32(recLen)
	if err := m.WriteInode(dp); err != nil {
		return err
	}
	_, err := m.Writei(dp, buf, off, uint32(recLen))
	return err
}

// DirEntry is one entry returned by Dirwalk: a read-only iteration over
// a directory's live records, skipping tombstones (spec.md's
// supplemented dirwalk iterator).
type DirEntry struct {
	Inode  uint32
	Name   string
	Offset uint32
}

// Dirwalk calls fn for every live (inode != 0) entry in dp, in on-disk
// order, stopping early if fn returns false. dp must already be locked
// by the caller.
func (m *Mount) Dirwalk(dp *icache.Inode, fn func(DirEntry) bool) {
	header := make([]byte, layout.DirEntryHeaderSize)
	nameBuf := make([]byte, layout.MaxNameLen)

	for off := uint32(0); off < dp.Size; {
		n, err := m.Readi(dp, header, off, layout.DirEntryHeaderSize)
		if err != nil || n != layout.DirEntryHeaderSize {
			kerrors.Panic("Dirwalk", "short read of directory entry header")
		}
		e, err := layout.DecodeDirEntry(header, 0)
		if err != nil {
			kerrors.Panic("Dirwalk", err.Error())
		}

		if e.Inode != 0 && e.NameLen > 0 {
			if _, err := m.Readi(dp, nameBuf[:e.NameLen], off+layout.DirEntryHeaderSize, uint32(e.NameLen)); err != nil {
				kerrors.Panic("Dirwalk", "short read of directory entry name")
			}
			cont := fn(DirEntry{Inode: e.Inode, Name: string(nameBuf[:e.NameLen]), Offset: off})
			if !cont {
				return
			}
		}
		off += uint32(e.RecLen)
	}
}
