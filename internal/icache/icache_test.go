package icache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	reads     int
	failRead  bool
	truncated []uint32
	freed     []uint32
}

func (d *fakeDriver) ReadInode(ip *Inode) error {
	d.reads++
	if d.failRead {
		return errors.New("injected read failure")
	}
	ip.Type = TypeFile
	ip.Nlink = 1
	ip.Size = 0
	return nil
}

func (d *fakeDriver) WriteInode(ip *Inode) error { return nil }

func (d *fakeDriver) Truncate(ip *Inode) error {
	d.truncated = append(d.truncated, ip.Inum)
	ip.Size = 0
	return nil
}

func (d *fakeDriver) FreeInodeBit(dev, inum uint32) error {
	d.freed = append(d.freed, inum)
	return nil
}

func TestIgetSameInodeSharesSlot(t *testing.T) {
	d := &fakeDriver{}
	c := New(d, 4)

	ip1 := c.Iget(0, 7)
	ip2 := c.Iget(0, 7)
	assert.Same(t, ip1, ip2)
}

func TestIlockReadsOnce(t *testing.T) {
	d := &fakeDriver{}
	c := New(d, 4)

	ip := c.Iget(0, 7)
	c.Ilock(ip)
	assert.True(t, ip.Valid)
	assert.Equal(t, TypeFile, ip.Type)
	c.Iunlock(ip)

	c.Ilock(ip)
	c.Iunlock(ip)
	assert.Equal(t, 1, d.reads)
	c.Iput(ip)
}

func TestIgetPanicsWhenExhausted(t *testing.T) {
	d := &fakeDriver{}
	c := New(d, 1)
	ip := c.Iget(0, 1)
	defer c.Iput(ip)

	assert.Panics(t, func() {
		c.Iget(0, 2)
	})
}

func TestIputFreesUnlinkedInode(t *testing.T) {
	d := &fakeDriver{}
	c := New(d, 4)

	ip := c.Iget(0, 9)
	c.Ilock(ip)
	ip.Nlink = 0
	c.Iunlock(ip)

	c.Iput(ip)

	require.Len(t, d.truncated, 1)
	assert.Equal(t, uint32(9), d.truncated[0])
	require.Len(t, d.freed, 1)
	assert.Equal(t, uint32(9), d.freed[0])
	assert.False(t, ip.Valid)
}

func TestIputKeepsBlocksWhileOtherRefsRemain(t *testing.T) {
	d := &fakeDriver{}
	c := New(d, 4)

	ip := c.Iget(0, 9)
	c.Idup(ip)
	c.Ilock(ip)
	ip.Nlink = 0
	c.Iunlock(ip)

	c.Iput(ip) // refcount 2 -> 1, should not truncate yet
	assert.Empty(t, d.truncated)

	c.Iput(ip) // refcount 1 -> 0, now truncates
	assert.Len(t, d.truncated, 1)
}

func TestIdupIncrementsRefcount(t *testing.T) {
	d := &fakeDriver{}
	c := New(d, 4)

	ip := c.Iget(0, 3)
	c.Idup(ip)
	c.Iput(ip)
	// still referenced once after one Iput
	ip2 := c.Iget(0, 3)
	assert.Same(t, ip, ip2)
	c.Iput(ip2)
}
