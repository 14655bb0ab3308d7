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

// Package mbr reads the master boot record that precedes an ext2
// partition on the backing block device, supplying the one number the
// ext2 driver needs from it: the partition's starting block, expressed
// in 1024-byte blocks rather than 512-byte sectors.
//
// Grounded on original_source/include/mbr.h and kernel/mbr.c; this is an
// external collaborator per spec.md §1/§6, kept minimal on purpose.
package mbr

import (
	"encoding/binary"
	"fmt"
)

const (
	sectorSize     = 512
	bootstrapBytes = 446
	partitionCount = 4
	signatureValue = 0xAA55
)

// PartitionEntry is one of the four MBR partition table entries.
type PartitionEntry struct {
	Status     uint8
	CHSStart   [3]byte
	Type       uint8
	CHSEnd     [3]byte
	LBAStart   uint32 // first sector of the partition, 512-byte sectors
	NumSectors uint32
}

// MBR is the decoded master boot record (sector 0 of the block device).
type MBR struct {
	Partitions [partitionCount]PartitionEntry
	Signature  uint16
}

// Parse decodes a 512-byte MBR sector.
func Parse(sector []byte) (*MBR, error) {
	if len(sector) < sectorSize {
		return nil, fmt.Errorf("mbr: sector too short: %d bytes", len(sector))
	}

	m := &MBR{}
	off := bootstrapBytes
	for i := 0; i < partitionCount; i++ {
		e := &m.Partitions[i]
		e.Status = sector[off]
		copy(e.CHSStart[:], sector[off+1:off+4])
		e.Type = sector[off+4]
		copy(e.CHSEnd[:], sector[off+5:off+8])
		e.LBAStart = binary.LittleEndian.Uint32(sector[off+8 : off+12])
		e.NumSectors = binary.LittleEndian.Uint32(sector[off+12 : off+16])
		off += 16
	}
	m.Signature = binary.LittleEndian.Uint16(sector[510:512])

	if m.Signature != signatureValue {
		return nil, fmt.Errorf("mbr: bad signature %#04x", m.Signature)
	}
	return m, nil
}

// PartitionStartBlock returns the first partition's starting block,
// expressed in 1024-byte blocks (spec.md §6: partition_start =
// lba_start / 2).
func (m *MBR) PartitionStartBlock() uint32 {
	return m.Partitions[0].LBAStart / 2
}
