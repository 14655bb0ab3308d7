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

// Package layout defines the on-disk ext2 structures this core reads and
// writes bit-exactly — superblock, group descriptor, inode, and
// directory entry — plus their encoding/binary marshaling.
//
// Grounded on original_source/include/ext2.h (the authoritative field
// layout and sizes) and on the other retrieved Go ext2 reader's
// readAt/writeAt pattern of driving encoding/binary over a raw byte
// buffer rather than hand-rolling byte-order math.
package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BlockSize is the fixed ext2 block size this core speaks (spec.md §3,
// §6): no support for larger logical block sizes.
const BlockSize = 1024

// Block addressing capacities, spec.md §4.2 and §9.
const (
	NDirBlocks   = 12
	IndBlock     = NDirBlocks
	DIndBlock    = IndBlock + 1
	TIndBlock    = DIndBlock + 1
	NBlocks      = TIndBlock + 1
	AddrsPerBlk  = BlockSize / 4 // 256 32-bit pointers per indirect block
	MaxDirect    = NDirBlocks
	MaxIndirect  = MaxDirect + AddrsPerBlk
	MaxDIndirect = MaxIndirect + AddrsPerBlk*AddrsPerBlk
	MaxTIndirect = MaxDIndirect + AddrsPerBlk*AddrsPerBlk*AddrsPerBlk
)

// File type bits (s_mode), original_source/include/ext2.h.
const (
	ModeFmt  = 0170000
	ModeSock = 0140000
	ModeLnk  = 0120000
	ModeReg  = 0100000
	ModeBlk  = 0060000
	ModeDir  = 0040000
	ModeChr  = 0020000
	ModeFifo = 0010000
)

// SuperblockOffset is the partition-relative byte offset of the
// superblock (spec.md §6).
const SuperblockOffset = 1024

// GroupDescBlock is the partition-relative block holding the group
// descriptor table, immediately after the superblock's block.
const GroupDescBlock = 2

// Superblock mirrors struct ext2_super_block's field order and widths.
// Only the fields this driver actually consults are given real meaning;
// the remainder round-trips opaquely through Reserved so a re-written
// superblock stays byte-faithful to fields this core never touches.
type Superblock struct {
	InodesCount      uint32
	BlocksCount      uint32
	RBlocksCount     uint32
	FreeBlocksCount  uint32
	FreeInodesCount  uint32
	FirstDataBlock   uint32
	LogBlockSize     uint32
	LogFragSize      uint32
	BlocksPerGroup   uint32
	FragsPerGroup    uint32
	InodesPerGroup   uint32
	MTime            uint32
	WTime            uint32
	MntCount         uint16
	MaxMntCount      uint16
	Magic            uint16
	State            uint16
	Errors           uint16
	MinorRevLevel    uint16
	LastCheck        uint32
	CheckInterval    uint32
	CreatorOS        uint32
	RevLevel         uint32
	DefResUID        uint16
	DefResGID        uint16
	FirstIno         uint32
	InodeSize        uint16
	BlockGroupNr     uint16
	FeatureCompat    uint32
	FeatureIncompat  uint32
	FeatureRoCompat  uint32
	UUID             [16]byte
	VolumeName       [16]byte
	LastMounted      [64]byte
	AlgoUsageBitmap  uint32
	PreallocBlocks   uint8
	PreallocDirBlks  uint8
	Padding1         uint16
	JournalUUID      [16]byte
	JournalInum      uint32
	JournalDev       uint32
	LastOrphan       uint32
	HashSeed         [4]uint32
	DefHashVersion   uint8
	ReservedCharPad  uint8
	ReservedWordPad  uint16
	DefaultMountOpts uint32
	FirstMetaBg      uint32
	Reserved         [190]uint32
}

// GroupDesc mirrors struct ext2_group_desc.
type GroupDesc struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
	Pad             uint16
	Reserved        [3]uint32
}

// groupDescSize is sizeof(struct ext2_group_desc): 32 bytes.
const groupDescSize = 32

// RawInode mirrors struct ext2_inode, with the OS-dependent unions
// collapsed to their Linux layout (osd1 is a single reserved u32, osd2
// is the Linux fragment/uid-high/gid-high/reserved2 form).
type RawInode struct {
	Mode        uint16
	UID         uint16
	Size        uint32
	ATime       uint32
	CTime       uint32
	MTime       uint32
	DTime       uint32
	GID         uint16
	LinksCount  uint16
	Blocks      uint32
	Flags       uint32
	OSD1        uint32
	Block       [NBlocks]uint32
	Generation  uint32
	FileACL     uint32
	DirACL      uint32
	FAddr       uint32
	FragNum     uint8
	FragSize    uint8
	Pad1        uint16
	UIDHigh     uint16
	GIDHigh     uint16
	OSD2Reserve uint32
}

// rawInodeSize is sizeof(struct ext2_inode): 128 bytes.
const rawInodeSize = 128

// DirEntryHeaderSize is the fixed portion of a directory entry (inode +
// rec_len + name_len + file_type), spec.md §3.
const DirEntryHeaderSize = 8

// MaxNameLen is the longest name a directory entry can hold.
const MaxNameLen = 255

// File type hints stored in a directory entry's file_type byte. This
// core never relies on it (dirlookup matches by name and ignores it,
// per spec.md's Linux-rev2 note), but dirlink writes Unknown, matching
// the source.
const (
	FileTypeUnknown = 0
	FileTypeReg     = 1
	FileTypeDir     = 2
	FileTypeChr     = 3
	FileTypeBlk     = 4
	FileTypeFifo    = 5
	FileTypeSock    = 6
	FileTypeSymlink = 7
)

// DirEntry is the decoded form of one directory record.
type DirEntry struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
}

func decode(buf []byte, out any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, out)
}

func encode(out []byte, v any) error {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
		return err
	}
	if b.Len() > len(out) {
		return fmt.Errorf("layout: encoded size %d exceeds buffer %d", b.Len(), len(out))
	}
	copy(out, b.Bytes())
	return nil
}

// DecodeSuperblock reads a Superblock from the first SuperblockOffset+…
// bytes of a block-1 buffer (the caller passes the 1024-byte block read
// at partition-relative block 1, per spec.md §6's "load block 1 ...
// copy 1024 bytes").
func DecodeSuperblock(block []byte) (*Superblock, error) {
	var sb Superblock
	if err := decode(block, &sb); err != nil {
		return nil, fmt.Errorf("layout: decode superblock: %w", err)
	}
	return &sb, nil
}

// EncodeSuperblock serializes sb back into a BlockSize-byte buffer.
func EncodeSuperblock(sb *Superblock) ([]byte, error) {
	buf := make([]byte, BlockSize)
	if err := encode(buf, sb); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeGroupDesc reads the group descriptor at group index idx out of a
// group-descriptor-table block.
func DecodeGroupDesc(block []byte, idx int) (*GroupDesc, error) {
	off := idx * groupDescSize
	if off+groupDescSize > len(block) {
		return nil, fmt.Errorf("layout: group index %d out of range", idx)
	}
	var gd GroupDesc
	if err := decode(block[off:off+groupDescSize], &gd); err != nil {
		return nil, fmt.Errorf("layout: decode group descriptor %d: %w", idx, err)
	}
	return &gd, nil
}

// EncodeGroupDesc writes gd back into block at group index idx.
func EncodeGroupDesc(block []byte, idx int, gd *GroupDesc) error {
	off := idx * groupDescSize
	if off+groupDescSize > len(block) {
		return fmt.Errorf("layout: group index %d out of range", idx)
	}
	return encode(block[off:off+groupDescSize], gd)
}

// DecodeInode reads the RawInode at byte offset off within an
// inode-table block buffer.
func DecodeInode(block []byte, off int) (*RawInode, error) {
	if off+rawInodeSize > len(block) {
		return nil, fmt.Errorf("layout: inode offset %d out of range", off)
	}
	var in RawInode
	if err := decode(block[off:off+rawInodeSize], &in); err != nil {
		return nil, fmt.Errorf("layout: decode inode: %w", err)
	}
	return &in, nil
}

// EncodeInode writes in back into block at byte offset off.
func EncodeInode(block []byte, off int, in *RawInode) error {
	if off+rawInodeSize > len(block) {
		return fmt.Errorf("layout: inode offset %d out of range", off)
	}
	return encode(block[off:off+rawInodeSize], in)
}

// InodeLocation computes (block-table-relative-block-index,
// within-block byte offset) for the inode at table index idx, given the
// on-disk inode size (spec.md §6: "iteration computes (inode_block,
// slot) = (base + index / (1024 / inode_size), index mod ...)").
func InodeLocation(idx int, inodeSize int) (blockOffset int, byteOffset int) {
	perBlock := BlockSize / inodeSize
	return idx / perBlock, (idx % perBlock) * inodeSize
}

// GroupAndIndex computes the block group and within-group index for
// inode number inum, per spec.md §4.2's GET_GROUP_NO/GET_INODE_INDEX.
func GroupAndIndex(inum uint32, inodesPerGroup uint32) (group uint32, index uint32) {
	return (inum - 1) / inodesPerGroup, (inum - 1) % inodesPerGroup
}

// DecodeDirEntry reads one directory record's header and name starting
// at byte offset off in block. Returns the entry, whose RecLen is its
// total on-disk length; callers advance by that length regardless of
// whether Inode is zero (a tombstone, spec.md §3/§9).
func DecodeDirEntry(block []byte, off int) (*DirEntry, error) {
	if off+DirEntryHeaderSize > len(block) {
		return nil, fmt.Errorf("layout: dirent header at %d out of range", off)
	}
	e := &DirEntry{
		Inode:    binary.LittleEndian.Uint32(block[off : off+4]),
		RecLen:   binary.LittleEndian.Uint16(block[off+4 : off+6]),
		NameLen:  block[off+6],
		FileType: block[off+7],
	}
	if e.RecLen < DirEntryHeaderSize || int(e.RecLen) > BlockSize {
		return nil, fmt.Errorf("layout: corrupt rec_len %d at offset %d", e.RecLen, off)
	}
	if e.NameLen > 0 {
		nameStart := off + DirEntryHeaderSize
		nameEnd := nameStart + int(e.NameLen)
		if nameEnd > len(block) {
			return nil, fmt.Errorf("layout: dirent name at %d out of range", off)
		}
		e.Name = string(block[nameStart:nameEnd])
	}
	return e, nil
}

// EncodeDirEntry writes e's header and name at byte offset off in block.
// The caller is responsible for having computed RecLen (word-aligned,
// spec.md §4.2's "(8 + name_len + 3) & ~3").
func EncodeDirEntry(block []byte, off int, e *DirEntry) error {
	if off+int(e.RecLen) > len(block) {
		return fmt.Errorf("layout: dirent at %d with rec_len %d out of range", off, e.RecLen)
	}
	binary.LittleEndian.PutUint32(block[off:off+4], e.Inode)
	binary.LittleEndian.PutUint16(block[off+4:off+6], e.RecLen)
	block[off+6] = byte(len(e.Name))
	block[off+7] = e.FileType
	copy(block[off+DirEntryHeaderSize:], e.Name)
	return nil
}

// DirRecLen computes the word-aligned record length for a name of the
// given length, per spec.md §4.2.
func DirRecLen(nameLen int) uint16 {
	return uint16((DirEntryHeaderSize + nameLen + 3) &^ 3)
}
