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

// Package memdevice implements bcache.BlockDevice entirely in memory, for
// tests that need a block device without a scratch file: the ext2,
// path-resolver and syscall tests build their images on it.
package memdevice

import (
	"fmt"
	"sync"

	"github.com/robledop/xv6/internal/bcache"
)

// Device is a fixed-capacity, zero-filled block device kept as a flat
// byte slice.
type Device struct {
	mu    sync.Mutex
	disks map[uint32][]byte
	nblk  uint32
}

// New returns a Device with nblk blocks of zeroed storage on device
// number 0.
func New(nblk uint32) *Device {
	d := &Device{disks: make(map[uint32][]byte), nblk: nblk}
	d.disks[0] = make([]byte, int(nblk)*bcache.BlockSize)
	return d
}

// ReadBlock implements bcache.BlockDevice.
func (d *Device) ReadBlock(dev uint32, blockno uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	disk, err := d.disk(dev, blockno)
	if err != nil {
		return err
	}
	copy(buf[:bcache.BlockSize], disk[int(blockno)*bcache.BlockSize:])
	return nil
}

// WriteBlock implements bcache.BlockDevice.
func (d *Device) WriteBlock(dev uint32, blockno uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	disk, err := d.disk(dev, blockno)
	if err != nil {
		return err
	}
	copy(disk[int(blockno)*bcache.BlockSize:], buf[:bcache.BlockSize])
	return nil
}

func (d *Device) disk(dev, blockno uint32) ([]byte, error) {
	disk, ok := d.disks[dev]
	if !ok {
		return nil, fmt.Errorf("memdevice: unknown device %d", dev)
	}
	if blockno >= d.nblk {
		return nil, fmt.Errorf("memdevice: block %d out of range (%d blocks)", blockno, d.nblk)
	}
	return disk, nil
}

// NumBlocks returns the device's capacity in blocks.
func (d *Device) NumBlocks() uint32 { return d.nblk }
