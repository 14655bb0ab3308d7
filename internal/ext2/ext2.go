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

// Package ext2 drives the on-disk ext2 layout: superblock and group
// descriptors, block and inode bitmaps, the four-level block map, and
// directory records. It implements icache.Driver so the inode cache can
// delegate disk I/O to it, and it is the only package that reaches into
// an icache.Inode's Addrs field.
//
// Grounded on original_source/kernel/ext2.c (ext2fs_balloc, ext2fs_bfree,
// ext2fs_ialloc, ext2fs_bmap, ext2fs_itrunc, ext2fs_dirlookup,
// ext2fs_dirlink) and original_source/include/ext2.h, generalized from a
// fixed global struct into a *Mount value so more than one filesystem
// can be driven in the same process (a test harness mounts several).
package ext2

import (
	"fmt"

	"github.com/robledop/xv6/internal/bcache"
	"github.com/robledop/xv6/internal/ext2/layout"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kerrors"
	"github.com/robledop/xv6/internal/logger"
	"github.com/robledop/xv6/internal/mbr"
)

// RootInum is the ext2 root directory's fixed inode number.
const RootInum = 2

// Mount is one mounted ext2 filesystem: a block device plus its cached
// superblock and the inode cache layered on top of it.
type Mount struct {
	Dev   uint32
	BC    *bcache.Cache
	IC    *icache.Cache
	SB    layout.Superblock
	Start uint32 // partition-relative block 0, in BCACHE's device-absolute numbering
}

var _ icache.Driver = (*Mount)(nil)

// New mounts dev: reads the MBR from block 0, the superblock from the
// partition's block 1, and wires up an inode cache of icacheSize slots
// backed by this Mount.
func New(devNum uint32, bc *bcache.Cache, icacheSize int) (*Mount, error) {
	b := bc.Read(devNum, 0)
	rec, err := mbr.Parse(b.Data[:])
	bc.Release(b)
	if err != nil {
		return nil, fmt.Errorf("ext2: reading MBR: %w", err)
	}
	start := rec.PartitionStartBlock()

	m := &Mount{Dev: devNum, BC: bc, Start: start}

	sbBlock := bc.Read(devNum, start+1)
	sb, err := layout.DecodeSuperblock(sbBlock.Data[:])
	bc.Release(sbBlock)
	if err != nil {
		return nil, fmt.Errorf("ext2: reading superblock: %w", err)
	}
	m.SB = *sb

	m.IC = icache.New(m, icacheSize)
	logger.Infof("ext2: mounted dev=%d blocks=%d inodes=%d inodes_per_group=%d inode_size=%d",
		devNum, m.SB.BlocksCount, m.SB.InodesCount, m.SB.InodesPerGroup, m.SB.InodeSize)
	return m, nil
}

func (m *Mount) inodeSize() int {
	if m.SB.InodeSize == 0 {
		return 128
	}
	return int(m.SB.InodeSize)
}

func (m *Mount) groupDescBlock() uint32 {
	return m.Start + layout.GroupDescBlock
}

func (m *Mount) readGroupDesc(group uint32) *layout.GroupDesc {
	b := m.BC.Read(m.Dev, m.groupDescBlock())
	defer m.BC.Release(b)
	gd, err := layout.DecodeGroupDesc(b.Data[:], int(group))
	if err != nil {
		kerrors.Panic("readGroupDesc", err.Error())
	}
	return gd
}

// bzero zeroes a partition-relative block on disk.
func (m *Mount) bzero(blockno uint32) {
	b := m.BC.Read(m.Dev, m.Start+blockno)
	b.Data = [bcache.BlockSize]byte{}
	m.BC.Write(b)
	m.BC.Release(b)
}

// findFreeBit scans bitmap MSB-first within each byte for a clear bit,
// sets it, and returns its index, or -1 if none free. Mirrors
// ext2fs_free_block.
func findFreeBit(bitmap []byte) int {
	for i := range bitmap {
		for j := 0; j < 8; j++ {
			mask := byte(1 << (7 - j))
			if bitmap[i]&mask == 0 {
				bitmap[i] |= mask
				return i*8 + j
			}
		}
	}
	return -1
}

// Balloc allocates and zeroes a free block in the group containing
// inumHint, returning its partition-relative block number. Panics if the
// group has no free bit (spec.md §4.2: "does not fall through to other
// groups").
func (m *Mount) Balloc(inumHint uint32) uint32 {
	group, _ := layout.GroupAndIndex(inumHint, m.SB.InodesPerGroup)
	gd := m.readGroupDesc(group)

	bmBlock := m.BC.Read(m.Dev, m.Start+gd.BlockBitmap)
	fbit := findFreeBit(bmBlock.Data[:])
	if fbit < 0 {
		m.BC.Release(bmBlock)
		kerrors.Panic("Balloc", "out of blocks in group")
	}
	m.BC.Write(bmBlock)
	blockno := gd.BlockBitmap + uint32(fbit)
	m.BC.Release(bmBlock)

	m.bzero(blockno)
	return blockno
}

// Bfree clears rel's bit in its group's block bitmap. Panics on
// double-free (spec.md §4.2, §9 test 6).
//
// Computes its group from s_blocks_per_group, not s_inodes_per_group:
// the reference kernel's ext2fs_bfree used GET_GROUP_NO (an
// inodes-per-group divisor) on a block number, which only happens to
// work when the two counts match. Kept as a genuine block-number
// computation here.
func (m *Mount) Bfree(rel uint32) {
	group := rel / m.SB.BlocksPerGroup
	gd := m.readGroupDesc(group)

	index := int(rel) - int(gd.BlockBitmap)
	bmBlock := m.BC.Read(m.Dev, m.Start+gd.BlockBitmap)
	mask := byte(1 << (7 - index%8))
	if bmBlock.Data[index/8]&mask == 0 {
		m.BC.Release(bmBlock)
		kerrors.Panic("Bfree", "block already free")
	}
	bmBlock.Data[index/8] &^= mask
	m.BC.Write(bmBlock)
	m.BC.Release(bmBlock)
}

// Ialloc scans every group in order for a free inode bit, initializes
// the on-disk inode's mode for typ, and returns a referenced in-memory
// inode via the icache. Panics if no group has a free inode (spec.md
// §4.2).
func (m *Mount) Ialloc(typ icache.Type) *icache.Inode {
	groupCount := m.SB.BlocksCount / m.SB.BlocksPerGroup

	for g := uint32(0); g <= groupCount; g++ {
		gd := m.readGroupDesc(g)

		bmBlock := m.BC.Read(m.Dev, m.Start+gd.InodeBitmap)
		fbit := findFreeBit(bmBlock.Data[:])
		if fbit < 0 {
			m.BC.Release(bmBlock)
			continue
		}

		perBlock := layout.BlockSize / m.inodeSize()
		tableBlock := gd.InodeTable + uint32(fbit/perBlock)
		slot := (fbit % perBlock) * m.inodeSize()

		inoBlock := m.BC.Read(m.Dev, m.Start+tableBlock)
		raw := &layout.RawInode{}
		switch typ {
		case icache.TypeDir:
			raw.Mode = layout.ModeDir
		case icache.TypeFile:
			raw.Mode = layout.ModeReg
		case icache.TypeDev:
			raw.Mode = layout.ModeChr
		}
		if err := layout.EncodeInode(inoBlock.Data[:], slot, raw); err != nil {
			kerrors.Panic("Ialloc", err.Error())
		}
		m.BC.Write(inoBlock)
		m.BC.Write(bmBlock)
		m.BC.Release(inoBlock)
		m.BC.Release(bmBlock)

		inum := g*m.SB.InodesPerGroup + uint32(fbit) + 1
		return m.IC.Iget(m.Dev, inum)
	}
	kerrors.Panic("Ialloc", "no free inodes")
	return nil
}

// ReadInode implements icache.Driver.
func (m *Mount) ReadInode(ip *icache.Inode) error {
	group, index := layout.GroupAndIndex(ip.Inum, m.SB.InodesPerGroup)
	gd := m.readGroupDesc(group)

	perBlock := layout.BlockSize / m.inodeSize()
	tableBlock := gd.InodeTable + index/uint32(perBlock)
	slot := int(index%uint32(perBlock)) * m.inodeSize()

	b := m.BC.Read(m.Dev, m.Start+tableBlock)
	raw, err := layout.DecodeInode(b.Data[:], slot)
	m.BC.Release(b)
	if err != nil {
		return err
	}

	switch raw.Mode & layout.ModeFmt {
	case layout.ModeDir:
		ip.Type = icache.TypeDir
	case layout.ModeChr, layout.ModeBlk:
		ip.Type = icache.TypeDev
	default:
		ip.Type = icache.TypeFile
	}
	ip.Nlink = raw.LinksCount
	ip.Size = raw.Size
	copy(ip.Addrs[:], raw.Block[:])
	return nil
}

// WriteInode implements icache.Driver.
func (m *Mount) WriteInode(ip *icache.Inode) error {
	group, index := layout.GroupAndIndex(ip.Inum, m.SB.InodesPerGroup)
	gd := m.readGroupDesc(group)

	perBlock := layout.BlockSize / m.inodeSize()
	tableBlock := gd.InodeTable + index/uint32(perBlock)
	slot := int(index%uint32(perBlock)) * m.inodeSize()

	b := m.BC.Read(m.Dev, m.Start+tableBlock)
	raw, err := layout.DecodeInode(b.Data[:], slot)
	if err != nil {
		m.BC.Release(b)
		return err
	}

	switch ip.Type {
	case icache.TypeDir:
		raw.Mode = layout.ModeDir
	case icache.TypeFile:
		raw.Mode = layout.ModeReg
	case icache.TypeDev:
		raw.Mode = layout.ModeChr
	}
	raw.LinksCount = ip.Nlink
	raw.Size = ip.Size
	raw.DTime = 0
	raw.FileACL = 0
	raw.Flags = 0
	raw.Generation = 0
	raw.GID = 0
	raw.MTime = 0
	raw.UID = 0
	raw.ATime = 0
	copy(raw.Block[:], ip.Addrs[:])

	if err := layout.EncodeInode(b.Data[:], slot, raw); err != nil {
		m.BC.Release(b)
		return err
	}
	m.BC.Write(b)
	m.BC.Release(b)
	return nil
}

// FreeInodeBit implements icache.Driver.
func (m *Mount) FreeInodeBit(dev, inum uint32) error {
	group, index := layout.GroupAndIndex(inum, m.SB.InodesPerGroup)
	gd := m.readGroupDesc(group)

	bmBlock := m.BC.Read(m.Dev, m.Start+gd.InodeBitmap)
	mask := byte(1 << (7 - index%8))
	if bmBlock.Data[index/8]&mask == 0 {
		m.BC.Release(bmBlock)
		kerrors.Panic("FreeInodeBit", "inode already free")
	}
	bmBlock.Data[index/8] &^= mask
	m.BC.Write(bmBlock)
	m.BC.Release(bmBlock)
	return nil
}
