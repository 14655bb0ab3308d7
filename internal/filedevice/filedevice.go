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

// Package filedevice implements bcache.BlockDevice over a regular file or
// block special file, the way the teaching kernel's emulated IDE disk is
// really just a host file when run under an emulator. One *File
// represents one physical device (minor number 0 in spec.md's devtab
// sense). Block numbers are offset by the partitionStart given to Open;
// the mount and fsck commands pass 0 and let the ext2 driver add the
// partition offset the mbr package located.
package filedevice

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/robledop/xv6/internal/bcache"
)

// File is a bcache.BlockDevice backed by an *os.File opened on a disk
// image or block device node.
type File struct {
	f            *os.File
	startBlock   uint32 // first block of the ext2 partition, from the MBR
	sectorLocked bool
}

// Open opens path for reading and writing and returns a File addressing
// blocks starting at partitionStart (in bcache.BlockSize units).
func Open(path string, partitionStart uint32) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("filedevice: open %s: %w", path, err)
	}
	return &File{f: f, startBlock: partitionStart}, nil
}

// Close releases the underlying file descriptor.
func (d *File) Close() error {
	return d.f.Close()
}

func (d *File) offset(blockno uint32) int64 {
	return int64(d.startBlock+blockno) * bcache.BlockSize
}

// ReadBlock implements bcache.BlockDevice.
func (d *File) ReadBlock(dev uint32, blockno uint32, buf []byte) error {
	n, err := d.f.ReadAt(buf[:bcache.BlockSize], d.offset(blockno))
	if err != nil {
		return fmt.Errorf("filedevice: read block %d: %w", blockno, err)
	}
	if n != bcache.BlockSize {
		return fmt.Errorf("filedevice: short read on block %d: got %d bytes", blockno, n)
	}
	return nil
}

// WriteBlock implements bcache.BlockDevice.
func (d *File) WriteBlock(dev uint32, blockno uint32, buf []byte) error {
	n, err := d.f.WriteAt(buf[:bcache.BlockSize], d.offset(blockno))
	if err != nil {
		return fmt.Errorf("filedevice: write block %d: %w", blockno, err)
	}
	if n != bcache.BlockSize {
		return fmt.Errorf("filedevice: short write on block %d: wrote %d bytes", blockno, n)
	}
	return nil
}

// Sync flushes dirty pages to the underlying device via fsync, following
// the same write-through discipline the block cache already applies per
// buffer. Nothing in this module calls it.
func (d *File) Sync() error {
	return unix.Fsync(int(d.f.Fd()))
}
