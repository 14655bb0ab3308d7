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

package ext2

import (
	"encoding/binary"

	"github.com/robledop/xv6/internal/ext2/layout"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kerrors"
)

// Bmap returns the partition-relative block address of the n'th block
// of ip's content, allocating it (and any indirect blocks on the path to
// it) if it doesn't exist yet. Four-level addressing per spec.md §4.2.
func (m *Mount) Bmap(ip *icache.Inode, n uint32) uint32 {
	if n < layout.NDirBlocks {
		if ip.Addrs[n] == 0 {
			ip.Addrs[n] = m.Balloc(ip.Inum)
		}
		return ip.Addrs[n]
	}
	n -= layout.NDirBlocks

	if n < layout.AddrsPerBlk {
		return m.bmapIndirect(ip, layout.IndBlock, n)
	}
	n -= layout.AddrsPerBlk

	if n < layout.AddrsPerBlk*layout.AddrsPerBlk {
		return m.bmapDIndirect(ip, layout.DIndBlock, n)
	}
	n -= layout.AddrsPerBlk * layout.AddrsPerBlk

	if n < layout.AddrsPerBlk*layout.AddrsPerBlk*layout.AddrsPerBlk {
		return m.bmapTIndirect(ip, layout.TIndBlock, n)
	}

	kerrors.Panic("Bmap", "block number out of range")
	return 0
}

func (m *Mount) readAddr(blockno uint32, idx uint32) uint32 {
	b := m.BC.Read(m.Dev, m.Start+blockno)
	defer m.BC.Release(b)
	return binary.LittleEndian.Uint32(b.Data[idx*4 : idx*4+4])
}

func (m *Mount) writeAddr(blockno uint32, idx uint32, addr uint32) {
	b := m.BC.Read(m.Dev, m.Start+blockno)
	binary.LittleEndian.PutUint32(b.Data[idx*4:idx*4+4], addr)
	m.BC.Write(b)
	m.BC.Release(b)
}

func (m *Mount) bmapIndirect(ip *icache.Inode, slot int, n uint32) uint32 {
	if ip.Addrs[slot] == 0 {
		ip.Addrs[slot] = m.Balloc(ip.Inum)
	}
	addr := m.readAddr(ip.Addrs[slot], n)
	if addr == 0 {
		addr = m.Balloc(ip.Inum)
		m.writeAddr(ip.Addrs[slot], n, addr)
	}
	return addr
}

func (m *Mount) bmapDIndirect(ip *icache.Inode, slot int, n uint32) uint32 {
	if ip.Addrs[slot] == 0 {
		ip.Addrs[slot] = m.Balloc(ip.Inum)
	}
	first := n / layout.AddrsPerBlk
	second := n % layout.AddrsPerBlk

	indBlock := m.readAddr(ip.Addrs[slot], first)
	if indBlock == 0 {
		indBlock = m.Balloc(ip.Inum)
		m.writeAddr(ip.Addrs[slot], first, indBlock)
	}
	addr := m.readAddr(indBlock, second)
	if addr == 0 {
		addr = m.Balloc(ip.Inum)
		m.writeAddr(indBlock, second, addr)
	}
	return addr
}

func (m *Mount) bmapTIndirect(ip *icache.Inode, slot int, n uint32) uint32 {
	if ip.Addrs[slot] == 0 {
		ip.Addrs[slot] = m.Balloc(ip.Inum)
	}
	first := n / (layout.AddrsPerBlk * layout.AddrsPerBlk)
	rem := n % (layout.AddrsPerBlk * layout.AddrsPerBlk)
	second := rem / layout.AddrsPerBlk
	third := rem % layout.AddrsPerBlk

	dindBlock := m.readAddr(ip.Addrs[slot], first)
	if dindBlock == 0 {
		dindBlock = m.Balloc(ip.Inum)
		m.writeAddr(ip.Addrs[slot], first, dindBlock)
	}
	indBlock := m.readAddr(dindBlock, second)
	if indBlock == 0 {
		indBlock = m.Balloc(ip.Inum)
		m.writeAddr(dindBlock, second, indBlock)
	}
	addr := m.readAddr(indBlock, third)
	if addr == 0 {
		addr = m.Balloc(ip.Inum)
		m.writeAddr(indBlock, third, addr)
	}
	return addr
}

// Truncate implements icache.Driver: frees every block ip owns across
// all four addressing levels, then zeroes ip.Size (spec.md §4.2).
func (m *Mount) Truncate(ip *icache.Inode) error {
	for i := 0; i < layout.NDirBlocks; i++ {
		if ip.Addrs[i] != 0 {
			m.Bfree(ip.Addrs[i])
			ip.Addrs[i] = 0
		}
	}

	m.freeIndirect(ip, layout.IndBlock, 1)
	m.freeIndirect(ip, layout.DIndBlock, 2)
	m.freeIndirect(ip, layout.TIndBlock, 3)

	ip.Size = 0
	return m.WriteInode(ip)
}

// freeIndirect recursively frees an indirect block tree depth levels
// deep (1 = singly indirect, 2 = doubly, 3 = triply), rooted at
// ip.Addrs[slot].
func (m *Mount) freeIndirect(ip *icache.Inode, slot int, depth int) {
	if ip.Addrs[slot] == 0 {
		return
	}
	m.freeBlockTree(ip.Addrs[slot], depth)
	ip.Addrs[slot] = 0
}

func (m *Mount) freeBlockTree(blockno uint32, depth int) {
	if depth > 0 {
		b := m.BC.Read(m.Dev, m.Start+blockno)
		var addrs [layout.AddrsPerBlk]uint32
		for i := range addrs {
			addrs[i] = binary.LittleEndian.Uint32(b.Data[i*4 : i*4+4])
		}
		m.BC.Release(b)
		for _, child := range addrs {
			if child != 0 {
				m.freeBlockTree(child, depth-1)
			}
		}
	}
	m.Bfree(blockno)
}
