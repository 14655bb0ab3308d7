package ftable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robledop/xv6/internal/icache"
)

// fakeDriver is a minimal icache.Driver + ftable.Driver double backed by
// a single in-memory byte slice per inode.
type fakeDriver struct {
	mu      sync.Mutex
	content map[uint32][]byte
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{content: make(map[uint32][]byte)}
}

func (d *fakeDriver) ReadInode(ip *icache.Inode) error {
	ip.Valid = true
	ip.Type = icache.TypeFile
	ip.Nlink = 1
	d.mu.Lock()
	ip.Size = uint32(len(d.content[ip.Inum]))
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) WriteInode(ip *icache.Inode) error { return nil }
func (d *fakeDriver) Truncate(ip *icache.Inode) error {
	d.mu.Lock()
	delete(d.content, ip.Inum)
	d.mu.Unlock()
	ip.Size = 0
	return nil
}
func (d *fakeDriver) FreeInodeBit(dev, inum uint32) error { return nil }

func (d *fakeDriver) Readi(ip *icache.Inode, dst []byte, off uint32, n uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.content[ip.Inum]
	if off >= uint32(len(data)) {
		return 0, nil
	}
	end := off + n
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	c := copy(dst, data[off:end])
	return uint32(c), nil
}

func (d *fakeDriver) Writei(ip *icache.Inode, src []byte, off uint32, n uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.content[ip.Inum]
	need := off + n
	if uint32(len(data)) < need {
		grown := make([]byte, need)
		copy(grown, data)
		data = grown
	}
	copy(data[off:off+n], src[:n])
	d.content[ip.Inum] = data
	ip.Size = uint32(len(data))
	return n, nil
}

func newTestFile(t *testing.T, driver *fakeDriver, inum uint32) (*icache.Cache, *icache.Inode) {
	t.Helper()
	ic := icache.New(driver, 8)
	ip := ic.Iget(0, inum)
	return ic, ip
}

func TestAllocAndCloseRoundTrip(t *testing.T) {
	driver := newFakeDriver()
	ic, ip := newTestFile(t, driver, 1)
	tbl := New(ic, driver, 4)

	f := tbl.Alloc()
	require.NotNil(t, f)
	f.Kind = KindInode
	f.Readable = true
	f.Writable = true
	f.Ip = ip

	n, err := tbl.Write(f, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	f.Off = 0
	buf := make([]byte, 5)
	n, err = tbl.Read(f, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))

	f.Close()
}

func TestAllocExhaustionReturnsNil(t *testing.T) {
	driver := newFakeDriver()
	ic := icache.New(driver, 4)
	tbl := New(ic, driver, 2)

	require.NotNil(t, tbl.Alloc())
	require.NotNil(t, tbl.Alloc())
	require.Nil(t, tbl.Alloc())
}

func TestDupIncrementsRefcountAndCloseDecrements(t *testing.T) {
	driver := newFakeDriver()
	ic, ip := newTestFile(t, driver, 1)
	tbl := New(ic, driver, 4)

	f := tbl.Alloc()
	f.Kind = KindInode
	f.Ip = ip

	tbl.Dup(f)
	f.Close() // refcnt 2 -> 1, should not release yet
	require.Equal(t, KindInode, f.Kind)

	f.Close() // refcnt 1 -> 0, releases
	require.Equal(t, KindNone, f.Kind)
}

func TestCloseOfUnopenedFilePanics(t *testing.T) {
	driver := newFakeDriver()
	ic := icache.New(driver, 4)
	tbl := New(ic, driver, 2)
	f := &File{table: tbl}

	require.Panics(t, func() { tbl.Close(f) })
}

func TestReadOnClosedFilePanics(t *testing.T) {
	driver := newFakeDriver()
	ic := icache.New(driver, 4)
	tbl := New(ic, driver, 2)
	f := tbl.Alloc()
	f.Readable = true

	require.Panics(t, func() { tbl.Read(f, make([]byte, 1)) })
}

func TestWritePipeRoundTrip(t *testing.T) {
	driver := newFakeDriver()
	ic := icache.New(driver, 4)
	tbl := New(ic, driver, 4)

	wf := tbl.Alloc()
	wf.Kind = KindPipe
	wf.Writable = true
	p := NewPipe()
	wf.Pipe = p

	rf := tbl.Alloc()
	rf.Kind = KindPipe
	rf.Readable = true
	rf.Pipe = p

	n, err := tbl.Write(wf, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, 2)
	n, err = tbl.Read(rf, buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf))
}

func TestStatRequiresInodeBackedFile(t *testing.T) {
	driver := newFakeDriver()
	ic := icache.New(driver, 4)
	tbl := New(ic, driver, 2)
	f := tbl.Alloc()
	f.Kind = KindPipe

	var st Stat
	require.Error(t, tbl.Stat(f, &st))
}
