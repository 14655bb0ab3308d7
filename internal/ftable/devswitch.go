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

package ftable

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/robledop/xv6/internal/kerrors"
)

// DevReadWriter is one device driver's read/write entry points, the Go
// analogue of struct devsw's function-pointer pair.
type DevReadWriter interface {
	DevRead(dst []byte) (int, error)
	DevWrite(src []byte) (int, error)
}

// DevSwitch dispatches device I/O by major number, and maps an inode
// number to its (major, minor) pair via a lazily-parsed /etc/devtab
// (spec.md §4.4).
type DevSwitch struct {
	mu       sync.Mutex
	drivers  map[uint32]DevReadWriter
	devtab   map[uint32]devEntry // inum -> entry, populated from /etc/devtab
	loaded   bool
	loadFunc func() (io.Reader, error)
}

type devEntry struct {
	typ   string
	major uint32
	minor uint32
}

// NewDevSwitch builds an empty DevSwitch. loadFunc supplies the contents
// of /etc/devtab on first use; tests pass a func returning a
// strings.Reader instead of touching the real filesystem.
func NewDevSwitch(loadFunc func() (io.Reader, error)) *DevSwitch {
	return &DevSwitch{
		drivers:  make(map[uint32]DevReadWriter),
		devtab:   make(map[uint32]devEntry),
		loadFunc: loadFunc,
	}
}

// Register installs the driver for major.
func (d *DevSwitch) Register(major uint32, drv DevReadWriter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drivers[major] = drv
}

// ensureLoaded parses /etc/devtab on first call, tab-separated "inum
// type major minor" per line.
func (d *DevSwitch) ensureLoaded() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}
	d.loaded = true

	r, err := d.loadFunc()
	if err != nil {
		return fmt.Errorf("ftable: loading devtab: %w", err)
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return fmt.Errorf("ftable: malformed devtab line %q", line)
		}
		inum, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return fmt.Errorf("ftable: devtab inum: %w", err)
		}
		major, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return fmt.Errorf("ftable: devtab major: %w", err)
		}
		minor, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return fmt.Errorf("ftable: devtab minor: %w", err)
		}
		d.devtab[uint32(inum)] = devEntry{typ: fields[1], major: uint32(major), minor: uint32(minor)}
	}
	return scanner.Err()
}

// Lookup returns the (major, minor) devtab entry for inum.
func (d *DevSwitch) Lookup(inum uint32) (major, minor uint32, err error) {
	if err := d.ensureLoaded(); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.devtab[inum]
	if !ok {
		return 0, 0, kerrors.ErrNoSuchDevice
	}
	return e.major, e.minor, nil
}

// Read dispatches to the driver registered for major.
func (d *DevSwitch) Read(major uint32, dst []byte) (int, error) {
	d.mu.Lock()
	drv, ok := d.drivers[major]
	d.mu.Unlock()
	if !ok {
		return 0, kerrors.ErrNoSuchDevice
	}
	return drv.DevRead(dst)
}

// Write dispatches to the driver registered for major.
func (d *DevSwitch) Write(major uint32, src []byte) (int, error) {
	d.mu.Lock()
	drv, ok := d.drivers[major]
	d.mu.Unlock()
	if !ok {
		return 0, kerrors.ErrNoSuchDevice
	}
	return drv.DevWrite(src)
}
