package namei

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robledop/xv6/internal/bcache"
	"github.com/robledop/xv6/internal/ext2"
	"github.com/robledop/xv6/internal/ext2/layout"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/memdevice"
)

const (
	testBlockBitmapBlock = 50
	testInodeBitmapBlock = 4
	testInodeTableBlock  = 5
	testInodesPerGroup   = 64
	testBlocksPerGroup   = 8192
)

// buildFS writes a minimal ext2 image and mounts it, returning the Mount
// and its root directory inode (referenced, unlocked).
func buildFS(t *testing.T, nblk uint32) (*ext2.Mount, *icache.Inode) {
	t.Helper()
	dev := memdevice.New(nblk)

	mbrSector := make([]byte, 1024)
	mbrSector[446] = 0x80
	binary.LittleEndian.PutUint32(mbrSector[446+8:446+12], 0)
	binary.LittleEndian.PutUint16(mbrSector[510:512], 0xAA55)
	require.NoError(t, dev.WriteBlock(0, 0, mbrSector))

	sb := &layout.Superblock{
		InodesCount:    testInodesPerGroup,
		BlocksCount:    nblk,
		BlocksPerGroup: testBlocksPerGroup,
		InodesPerGroup: testInodesPerGroup,
		InodeSize:      128,
		Magic:          0xEF53,
	}
	sbBuf, err := layout.EncodeSuperblock(sb)
	require.NoError(t, err)
	require.NoError(t, dev.WriteBlock(0, 1, sbBuf))

	gdBlock := make([]byte, layout.BlockSize)
	gd := &layout.GroupDesc{
		BlockBitmap: testBlockBitmapBlock,
		InodeBitmap: testInodeBitmapBlock,
		InodeTable:  testInodeTableBlock,
	}
	require.NoError(t, layout.EncodeGroupDesc(gdBlock, 0, gd))
	require.NoError(t, dev.WriteBlock(0, 2, gdBlock))

	zero := make([]byte, layout.BlockSize)
	// Bit 0 of the block bitmap stands for the bitmap block itself.
	blockBitmap := make([]byte, layout.BlockSize)
	blockBitmap[0] = 0x80
	require.NoError(t, dev.WriteBlock(0, testBlockBitmapBlock, blockBitmap))
	require.NoError(t, dev.WriteBlock(0, testInodeBitmapBlock, zero))
	for i := uint32(0); i < 8; i++ {
		require.NoError(t, dev.WriteBlock(0, testInodeTableBlock+i, zero))
	}

	bc := bcache.New(dev, 16)
	m, err := ext2.New(0, bc, 16)
	require.NoError(t, err)

	// The freshly-built image has no root directory on disk; allocate
	// one at the well-known root inode number by allocating inodes
	// until Ialloc reaches RootInum (the image starts with an empty
	// inode bitmap, so the first allocation always lands on bit 0 /
	// inode 1 — consume it, then allocate the real root).
	placeholder := m.Ialloc(icache.TypeFile)
	root := m.Ialloc(icache.TypeDir)
	require.Equal(t, uint32(ext2.RootInum), root.Inum)
	m.IC.Iput(placeholder)

	return m, root
}

func TestNameiResolvesTopLevelFile(t *testing.T) {
	m, root := buildFS(t, 256)
	defer m.IC.Iput(root)

	child := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(root)
	require.NoError(t, m.Dirlink(root, "hello.txt", child.Inum))
	m.IC.Iunlock(root)
	m.IC.Iput(child)

	r := New(m.IC, m, m.Dev)
	ip, err := r.Namei("/hello.txt", root)
	require.NoError(t, err)
	require.Equal(t, child.Inum, ip.Inum)
	m.IC.Iput(ip)
}

func TestNameiResolvesNestedPath(t *testing.T) {
	m, root := buildFS(t, 256)
	defer m.IC.Iput(root)

	sub := m.Ialloc(icache.TypeDir)
	m.IC.Ilock(root)
	require.NoError(t, m.Dirlink(root, "sub", sub.Inum))
	m.IC.Iunlock(root)

	leaf := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(sub)
	// Count sub's entry in root, so dropping the test's reference below
	// does not free it.
	sub.Nlink = 1
	require.NoError(t, m.IC.IUpdate(sub))
	require.NoError(t, m.Dirlink(sub, "leaf.txt", leaf.Inum))
	m.IC.Iunlock(sub)
	m.IC.Iput(sub)
	m.IC.Iput(leaf)

	r := New(m.IC, m, m.Dev)
	ip, err := r.Namei("/sub/leaf.txt", root)
	require.NoError(t, err)
	require.Equal(t, leaf.Inum, ip.Inum)
	m.IC.Iput(ip)
}

func TestNameiMissingComponentFails(t *testing.T) {
	m, root := buildFS(t, 256)
	defer m.IC.Iput(root)

	r := New(m.IC, m, m.Dev)
	_, err := r.Namei("/nope", root)
	require.Error(t, err)
}

func TestNameiParentReturnsDirAndFinalName(t *testing.T) {
	m, root := buildFS(t, 256)
	defer m.IC.Iput(root)

	child := m.Ialloc(icache.TypeFile)
	m.IC.Iput(child)

	r := New(m.IC, m, m.Dev)
	dir, name, err := r.NameiParent("/newfile.txt", root)
	require.NoError(t, err)
	require.Equal(t, root.Inum, dir.Inum)
	require.Equal(t, "newfile.txt", name)
	m.IC.Iput(dir)
}

func TestNameiRelativePathUsesCwd(t *testing.T) {
	m, root := buildFS(t, 256)
	defer m.IC.Iput(root)

	child := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(root)
	require.NoError(t, m.Dirlink(root, "rel.txt", child.Inum))
	m.IC.Iunlock(root)
	m.IC.Iput(child)

	r := New(m.IC, m, m.Dev)
	ip, err := r.Namei("rel.txt", root)
	require.NoError(t, err)
	require.Equal(t, child.Inum, ip.Inum)
	m.IC.Iput(ip)
}

func TestNameiThroughNonDirectoryFails(t *testing.T) {
	m, root := buildFS(t, 256)
	defer m.IC.Iput(root)

	file := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(root)
	require.NoError(t, m.Dirlink(root, "afile", file.Inum))
	m.IC.Iunlock(root)
	m.IC.Iput(file)

	r := New(m.IC, m, m.Dev)
	_, err := r.Namei("/afile/child", root)
	require.Error(t, err)
}
