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

// Package icache implements the reference-counted, fixed-size inode
// cache (spec.md §4.3): a table of in-memory Inodes interned by
// (device, inum), each guarded by its own sleep lock, with membership
// and refcounts guarded by one cache-wide mutex (the "icache lock").
//
// The cache itself knows nothing about ext2's disk layout — reading,
// writing, and truncating an inode's on-disk contents are delegated to
// a Driver, the same separation the source draws with its
// inode_operations vtable, collapsed here to the one filesystem this
// core speaks.
package icache

import (
	"sync"

	"github.com/robledop/xv6/internal/kerrors"
	"github.com/robledop/xv6/internal/logger"
	"github.com/robledop/xv6/internal/metrics"
	"github.com/robledop/xv6/internal/sleeplock"
)

// Type is an inode's on-disk type, copied into the in-memory inode by
// Ilock.
type Type int

const (
	TypeNone Type = iota
	TypeDir
	TypeFile
	TypeDev
)

// AddrCount is the number of on-disk block pointers held in an inode's
// addrs block (spec.md §3: "12 direct ... singly-indirect ...
// doubly-indirect ... triply-indirect", 12+1+1+1 = 15).
const AddrCount = 15

// Inode is the in-memory, interned copy of an on-disk inode.
//
// Dev, Inum, and the refcount are guarded by the owning Cache's mutex.
// Lock guards everything else: Valid, Type, Major, Minor, Nlink, Size,
// and Addrs. This mirrors spec.md §4.3's invariant (c).
type Inode struct {
	Dev  uint32
	Inum uint32

	Lock *sleeplock.Lock

	Valid bool
	Type  Type
	Major uint32
	Minor uint32
	Nlink uint16
	Size  uint32
	Addrs [AddrCount]uint32

	refcnt int
}

// Driver supplies the on-disk operations Ilock/Iput need. Implemented by
// the ext2 package.
type Driver interface {
	// ReadInode fills in Type/Nlink/Size/Addrs for ip from
	// disk, given ip.Dev and ip.Inum. Called with ip.Lock held.
	ReadInode(ip *Inode) error
	// WriteInode writes ip's in-memory fields back to disk. Called with
	// ip.Lock held.
	WriteInode(ip *Inode) error
	// Truncate frees every block an inode owns and zeroes ip.Size.
	// Called with ip.Lock held, only when ip.Nlink == 0.
	Truncate(ip *Inode) error
	// FreeInodeBit clears the inode's bit in its group's inode bitmap.
	FreeInodeBit(dev, inum uint32) error
}

// Cache is the fixed-size inode table. The zero value is not usable; use
// New.
type Cache struct {
	mu     sync.Mutex // the "icache lock"
	driver Driver
	slots  []*Inode
}

// New builds a Cache of size slots, backed by driver.
func New(driver Driver, size int) *Cache {
	if size <= 0 {
		panic("icache: size must be positive")
	}
	slots := make([]*Inode, size)
	for i := range slots {
		slots[i] = &Inode{Lock: sleeplock.NewLock()}
	}
	return &Cache{driver: driver, slots: slots}
}

// Iget returns a referenced, unlocked Inode for (dev, inum): an existing
// cached entry if one has a nonzero refcount, otherwise a freshly
// claimed slot. Panics if every slot is in use (spec.md §4.3: "If none,
// panic").
func (c *Cache) Iget(dev, inum uint32) *Inode {
	c.mu.Lock()
	defer c.mu.Unlock()

	var empty *Inode
	for _, ip := range c.slots {
		if ip.refcnt > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.refcnt++
			metrics.IcacheHit()
			return ip
		}
		if empty == nil && ip.refcnt == 0 {
			empty = ip
		}
	}
	if empty == nil {
		logger.Errorf("icache: no free slots for dev=%d inum=%d", dev, inum)
		panic("icache: no free inode slots")
	}

	metrics.IcacheMiss()
	empty.Dev = dev
	empty.Inum = inum
	empty.refcnt = 1
	empty.Valid = false
	return empty
}

// Idup increments ip's reference count and returns ip, for callers that
// want to hold their own reference to an inode someone else already
// has open (spec.md §4.3).
func (c *Cache) Idup(ip *Inode) *Inode {
	c.mu.Lock()
	defer c.mu.Unlock()
	ip.refcnt++
	return ip
}

// Ilock acquires ip's sleep lock and, if the cached copy isn't valid
// yet, reads it from disk via the Driver.
func (c *Cache) Ilock(ip *Inode) {
	ip.Lock.Acquire()
	if !ip.Valid {
		if err := c.driver.ReadInode(ip); err != nil {
			logger.Fatalf("icache: read inode dev=%d inum=%d: %v", ip.Dev, ip.Inum, err)
		}
		if ip.Type == TypeNone {
			kerrors.Panic("ilock", "inode has no type after read")
		}
		ip.Valid = true
	}
}

// Iunlock releases ip's sleep lock.
func (c *Cache) Iunlock(ip *Inode) {
	ip.Lock.Release()
}

// IUpdate flushes ip's in-memory fields back to disk via the Driver.
// Callers must hold ip's sleep lock.
func (c *Cache) IUpdate(ip *Inode) error {
	return c.driver.WriteInode(ip)
}

// Iput drops one reference to ip, freeing its on-disk blocks, bitmap
// bit, and cache slot if this was the last reference to a now-unlinked
// inode (spec.md §4.3).
func (c *Cache) Iput(ip *Inode) {
	ip.Lock.Acquire()

	if ip.Valid && ip.Nlink == 0 {
		c.mu.Lock()
		r := ip.refcnt
		c.mu.Unlock()

		if r == 1 {
			if err := c.driver.Truncate(ip); err != nil {
				logger.Fatalf("icache: truncate dev=%d inum=%d: %v", ip.Dev, ip.Inum, err)
			}
			ip.Type = TypeNone
			if err := c.driver.WriteInode(ip); err != nil {
				logger.Fatalf("icache: write inode dev=%d inum=%d: %v", ip.Dev, ip.Inum, err)
			}
			if err := c.driver.FreeInodeBit(ip.Dev, ip.Inum); err != nil {
				logger.Fatalf("icache: free inode bit dev=%d inum=%d: %v", ip.Dev, ip.Inum, err)
			}
			ip.Valid = false
		}
	}

	ip.Lock.Release()

	c.mu.Lock()
	ip.refcnt--
	if ip.refcnt < 0 {
		panic("icache: iput of inode with zero refcount")
	}
	c.mu.Unlock()
}

// IunlockPut is Iunlock followed by Iput.
func (c *Cache) IunlockPut(ip *Inode) {
	c.Iunlock(ip)
	c.Iput(ip)
}
