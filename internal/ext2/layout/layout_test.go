package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &Superblock{
		InodesCount:    128,
		BlocksCount:    4096,
		BlocksPerGroup: 8192,
		InodesPerGroup: 128,
		Magic:          0xEF53,
		InodeSize:      128,
	}

	buf, err := EncodeSuperblock(sb)
	require.NoError(t, err)
	require.Len(t, buf, BlockSize)

	got, err := DecodeSuperblock(buf)
	require.NoError(t, err)
	assert.Equal(t, sb.InodesCount, got.InodesCount)
	assert.Equal(t, sb.BlocksPerGroup, got.BlocksPerGroup)
	assert.Equal(t, uint16(0xEF53), got.Magic)
}

func TestGroupDescRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	gd := &GroupDesc{BlockBitmap: 5, InodeBitmap: 6, InodeTable: 7, FreeBlocksCount: 100}

	require.NoError(t, EncodeGroupDesc(block, 1, gd))

	got, err := DecodeGroupDesc(block, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.BlockBitmap)
	assert.Equal(t, uint32(7), got.InodeTable)
	assert.Equal(t, uint16(100), got.FreeBlocksCount)
}

func TestGroupDescOutOfRange(t *testing.T) {
	block := make([]byte, BlockSize)
	_, err := DecodeGroupDesc(block, 1000)
	assert.Error(t, err)
}

func TestInodeRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	in := &RawInode{Mode: ModeReg | 0644, Size: 4096, LinksCount: 1}
	in.Block[0] = 42

	require.NoError(t, EncodeInode(block, 0, in))

	got, err := DecodeInode(block, 0)
	require.NoError(t, err)
	assert.Equal(t, in.Mode, got.Mode)
	assert.Equal(t, uint32(4096), got.Size)
	assert.Equal(t, uint32(42), got.Block[0])
}

func TestInodeLocation(t *testing.T) {
	blockOff, byteOff := InodeLocation(5, 128)
	assert.Equal(t, 0, blockOff)
	assert.Equal(t, 640, byteOff)

	blockOff, byteOff = InodeLocation(8, 128)
	assert.Equal(t, 1, blockOff)
	assert.Equal(t, 0, byteOff)
}

func TestGroupAndIndex(t *testing.T) {
	group, index := GroupAndIndex(1, 128)
	assert.Equal(t, uint32(0), group)
	assert.Equal(t, uint32(0), index)

	group, index = GroupAndIndex(129, 128)
	assert.Equal(t, uint32(1), group)
	assert.Equal(t, uint32(0), index)
}

func TestDirEntryRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	e := &DirEntry{Inode: 3, RecLen: DirRecLen(len("hello")), FileType: FileTypeReg, Name: "hello"}

	require.NoError(t, EncodeDirEntry(block, 0, e))

	got, err := DecodeDirEntry(block, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Inode)
	assert.Equal(t, "hello", got.Name)
	assert.Equal(t, uint8(5), got.NameLen)
}

func TestDirEntryRejectsCorruptRecLen(t *testing.T) {
	block := make([]byte, BlockSize)
	block[4] = 2 // rec_len = 2, below the 8-byte header minimum

	_, err := DecodeDirEntry(block, 0)
	assert.Error(t, err)
}

func TestDirRecLenWordAligned(t *testing.T) {
	assert.Equal(t, uint16(12), DirRecLen(1))
	assert.Equal(t, uint16(16), DirRecLen(5))
}
