package ext2

import (
	"encoding/binary"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"

	"github.com/robledop/xv6/internal/bcache"
	"github.com/robledop/xv6/internal/ext2/layout"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/memdevice"
)

const (
	// testBlockBitmapBlock is placed well past the inode table so the
	// data blocks balloc hands out (computed as bg_block_bitmap + bit
	// index, matching the reference kernel) don't land on the inode
	// table or either bitmap block.
	testBlockBitmapBlock = 50
	testInodeBitmapBlock = 4
	testInodeTableBlock  = 5
	testInodesPerGroup   = 64
	testBlocksPerGroup   = 8192
)

// buildImage writes a minimal, single-partition, single-group ext2
// image (MBR + superblock + one group descriptor) onto a fresh
// memdevice and returns a mounted Mount over it.
func buildImage(t *testing.T, nblk uint32) *Mount {
	t.Helper()
	dev := memdevice.New(nblk)

	mbrSector := make([]byte, 512)
	mbrSector[446] = 0x80
	binary.LittleEndian.PutUint32(mbrSector[446+8:446+12], 0) // lba_start = 0
	binary.LittleEndian.PutUint16(mbrSector[510:512], 0xAA55)
	require.NoError(t, dev.WriteBlock(0, 0, pad1024(mbrSector)))

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

	// Zeroed inode bitmap and inode table blocks: every inode free. Bit 0
	// of the block bitmap stands for the bitmap block itself, so it starts
	// set; every later block is free.
	zero := make([]byte, layout.BlockSize)
	blockBitmap := make([]byte, layout.BlockSize)
	blockBitmap[0] = 0x80
	require.NoError(t, dev.WriteBlock(0, testBlockBitmapBlock, blockBitmap))
	require.NoError(t, dev.WriteBlock(0, testInodeBitmapBlock, zero))
	for i := uint32(0); i < 8; i++ {
		require.NoError(t, dev.WriteBlock(0, testInodeTableBlock+i, zero))
	}

	bc := bcache.New(dev, 16)
	m, err := New(0, bc, 8)
	require.NoError(t, err)
	return m
}

func pad1024(b []byte) []byte {
	out := make([]byte, 1024)
	copy(out, b)
	return out
}

func TestMountReadsSuperblock(t *testing.T) {
	m := buildImage(t, 64)
	require.Equal(t, uint32(0xEF53), uint32(m.SB.Magic))
	require.Equal(t, uint32(testInodesPerGroup), m.SB.InodesPerGroup)
}

func TestIallocAssignsDistinctInodes(t *testing.T) {
	m := buildImage(t, 64)

	dirIp := m.Ialloc(icache.TypeDir)
	fileIp := m.Ialloc(icache.TypeFile)

	require.NotEqual(t, dirIp.Inum, fileIp.Inum)

	m.IC.Ilock(dirIp)
	require.Equal(t, icache.TypeDir, dirIp.Type)
	m.IC.IunlockPut(dirIp)

	m.IC.Ilock(fileIp)
	require.Equal(t, icache.TypeFile, fileIp.Type)
	m.IC.IunlockPut(fileIp)
}

func TestWriteiReadiRoundTrip(t *testing.T) {
	m := buildImage(t, 128)
	ip := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(ip)
	defer m.IC.IunlockPut(ip)

	payload := []byte("hello, ext2")
	n, err := m.Writei(ip, payload, 0, uint32(len(payload)))
	require.NoError(t, err)
	require.Equal(t, uint32(len(payload)), n)
	require.Equal(t, uint32(len(payload)), ip.Size)

	got := make([]byte, len(payload))
	n, err = m.Readi(ip, got, 0, uint32(len(payload)))
	require.NoError(t, err)
	require.Equal(t, uint32(len(payload)), n)
	require.Equal(t, payload, got)
}

func TestWriteiSpansIndirectBlock(t *testing.T) {
	m := buildImage(t, 4096)
	ip := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(ip)
	defer m.IC.IunlockPut(ip)

	total := layout.BlockSize * 13
	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := m.Writei(ip, payload, 0, uint32(total))
	require.NoError(t, err)
	require.Equal(t, uint32(total), n)
	require.NotZero(t, ip.Addrs[layout.IndBlock])

	got := make([]byte, layout.BlockSize)
	n, err = m.Readi(ip, got, uint32(12*layout.BlockSize), layout.BlockSize)
	require.NoError(t, err)
	require.Equal(t, uint32(layout.BlockSize), n)
	require.Equal(t, payload[12*layout.BlockSize:13*layout.BlockSize], got)
}

func TestDirlinkAndDirlookup(t *testing.T) {
	m := buildImage(t, 128)
	dirIp := m.Ialloc(icache.TypeDir)
	fileIp := m.Ialloc(icache.TypeFile)

	m.IC.Ilock(dirIp)
	require.NoError(t, m.Dirlink(dirIp, "greeting.txt", fileIp.Inum))
	m.IC.Iunlock(dirIp)

	m.IC.Ilock(dirIp)
	found := m.Dirlookup(dirIp, "greeting.txt", nil)
	m.IC.Iunlock(dirIp)
	require.NotNil(t, found)
	require.Equal(t, fileIp.Inum, found.Inum)
	m.IC.Iput(found)

	m.IC.Ilock(dirIp)
	miss := m.Dirlookup(dirIp, "nope", nil)
	m.IC.Iunlock(dirIp)
	require.Nil(t, miss)

	m.IC.Iput(dirIp)
	m.IC.Iput(fileIp)
}

func TestDirlinkRejectsDuplicateName(t *testing.T) {
	m := buildImage(t, 128)
	dirIp := m.Ialloc(icache.TypeDir)
	fileIp := m.Ialloc(icache.TypeFile)
	defer m.IC.Iput(fileIp)
	defer m.IC.Iput(dirIp)

	m.IC.Ilock(dirIp)
	require.NoError(t, m.Dirlink(dirIp, "a", fileIp.Inum))
	err := m.Dirlink(dirIp, "a", fileIp.Inum)
	m.IC.Iunlock(dirIp)
	require.Error(t, err)
}

func TestBfreeTwiceOnSameBlockPanics(t *testing.T) {
	m := buildImage(t, 64)
	blockno := m.Balloc(1)

	require.Panics(t, func() {
		m.Bfree(blockno)
		m.Bfree(blockno)
	})
}

func TestTruncateFreesDirectBlocks(t *testing.T) {
	m := buildImage(t, 128)
	ip := m.Ialloc(icache.TypeFile)
	m.IC.Ilock(ip)

	payload := make([]byte, layout.BlockSize*3)
	_, err := m.Writei(ip, payload, 0, uint32(len(payload)))
	require.NoError(t, err)
	require.NotZero(t, ip.Addrs[0])

	require.NoError(t, m.Truncate(ip))
	require.Zero(t, ip.Size)
	require.Zero(t, ip.Addrs[0])

	m.IC.Iunlock(ip)
	m.IC.Iput(ip)
}

func TestDirwalkVisitsLiveEntriesInOrder(t *testing.T) {
	m := buildImage(t, 128)
	dirIp := m.Ialloc(icache.TypeDir)
	f1 := m.Ialloc(icache.TypeFile)
	f2 := m.Ialloc(icache.TypeFile)
	defer m.IC.Iput(f2)
	defer m.IC.Iput(f1)
	defer m.IC.Iput(dirIp)

	m.IC.Ilock(dirIp)
	require.NoError(t, m.Dirlink(dirIp, "one", f1.Inum))
	require.NoError(t, m.Dirlink(dirIp, "two", f2.Inum))

	var names []string
	m.Dirwalk(dirIp, func(e DirEntry) bool {
		names = append(names, e.Name)
		return true
	})
	m.IC.Iunlock(dirIp)

	require.Equal(t, []string{"one", "two"}, names)
}

func TestDirwalkEntryOffsetsMatchOnDiskOrder(t *testing.T) {
	m := buildImage(t, 128)
	dirIp := m.Ialloc(icache.TypeDir)
	f1 := m.Ialloc(icache.TypeFile)
	f2 := m.Ialloc(icache.TypeFile)
	defer m.IC.Iput(f2)
	defer m.IC.Iput(f1)
	defer m.IC.Iput(dirIp)

	m.IC.Ilock(dirIp)
	require.NoError(t, m.Dirlink(dirIp, "one", f1.Inum))
	require.NoError(t, m.Dirlink(dirIp, "two", f2.Inum))

	var got []DirEntry
	m.Dirwalk(dirIp, func(e DirEntry) bool {
		got = append(got, e)
		return true
	})
	m.IC.Iunlock(dirIp)

	want := []DirEntry{
		{Inode: f1.Inum, Name: "one", Offset: 0},
		{Inode: f2.Inum, Name: "two", Offset: uint32(layout.DirRecLen(len("one")))},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("dirwalk entries differ (-want +got):\n%s", diff)
	}
}
