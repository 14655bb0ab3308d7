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
	"github.com/robledop/xv6/internal/ext2/layout"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kerrors"
)

func min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// Readi reads n bytes from ip's content starting at off into dst, which
// must be at least n bytes. Requires ip.Lock held (the caller has
// already Ilock'd ip). Returns the number of bytes read, or an error for
// an out-of-range read. Device inodes get no special handling: their
// content is read like a regular file's, and neither Readi nor the file
// table routes them to the device switch.
func (m *Mount) Readi(ip *icache.Inode, dst []byte, off uint32, n uint32) (uint32, error) {
	if off > ip.Size || off+n < off {
		return 0, kerrors.ErrInvalidArg
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}

	var tot uint32
	for tot < n {
		blockno := m.Bmap(ip, off/layout.BlockSize)
		b := m.BC.Read(m.Dev, m.Start+blockno)
		chunk := min(n-tot, layout.BlockSize-off%layout.BlockSize)
		copy(dst[tot:tot+chunk], b.Data[off%layout.BlockSize:])
		m.BC.Release(b)

		tot += chunk
		off += chunk
	}
	return tot, nil
}

// Writei writes n bytes from src into ip's content starting at off.
// Requires ip.Lock held. Extends ip.Size (and calls WriteInode) when the
// write runs past the current size. Refuses writes past the
// triple-indirect boundary.
func (m *Mount) Writei(ip *icache.Inode, src []byte, off uint32, n uint32) (uint32, error) {
	if off > ip.Size || off+n < off {
		return 0, kerrors.ErrInvalidArg
	}
	if uint64(off)+uint64(n) > uint64(layout.MaxTIndirect)*layout.BlockSize {
		return 0, kerrors.ErrNoSpace
	}

	var tot uint32
	for tot < n {
		blockno := m.Bmap(ip, off/layout.BlockSize)
		b := m.BC.Read(m.Dev, m.Start+blockno)
		chunk := min(n-tot, layout.BlockSize-off%layout.BlockSize)
		copy(b.Data[off%layout.BlockSize:], src[tot:tot+chunk])
		m.BC.Write(b)
		m.BC.Release(b)

		tot += chunk
		off += chunk
	}

	if n > 0 && off > ip.Size {
		ip.Size = off
		if err := m.WriteInode(ip); err != nil {
			return tot, err
		}
	}
	return tot, nil
}
