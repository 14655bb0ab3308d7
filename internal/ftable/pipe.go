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
	"bytes"
	"sync"

	"github.com/robledop/xv6/internal/kerrors"
)

// pipeBufSize bounds a Pipe's internal buffer, the way the reference
// kernel's pipe is a fixed 512-byte ring.
const pipeBufSize = 512

// Pipe is a small in-memory byte pipe backing the File KindPipe variant
// spec.md's data model names; this core's pipe(2) support is minimal —
// a bounded buffer with blocking reads/writes, not a full ring with
// wraparound accounting.
type Pipe struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	buf        bytes.Buffer
	readOpen   bool
	writeOpen  bool
}

// NewPipe returns a Pipe with both ends open.
func NewPipe() *Pipe {
	p := &Pipe{readOpen: true, writeOpen: true}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Read blocks until at least one byte is available or the write end is
// closed, then drains up to len(buf) bytes.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Len() == 0 && p.writeOpen {
		p.notEmpty.Wait()
	}
	if p.buf.Len() == 0 {
		return 0, nil // EOF: write end closed, nothing left
	}
	n, _ := p.buf.Read(buf)
	p.notFull.Signal()
	return n, nil
}

// Write blocks while the buffer is full, copying in up to pipeBufSize
// bytes at a time until all of buf is written or the read end is closed.
func (p *Pipe) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for total < len(buf) {
		if !p.readOpen {
			return total, kerrors.ErrInvalidArg
		}
		for p.buf.Len() >= pipeBufSize && p.readOpen {
			p.notFull.Wait()
		}
		if !p.readOpen {
			return total, kerrors.ErrInvalidArg
		}
		room := pipeBufSize - p.buf.Len()
		chunk := len(buf) - total
		if chunk > room {
			chunk = room
		}
		p.buf.Write(buf[total : total+chunk])
		total += chunk
		p.notEmpty.Signal()
	}
	return total, nil
}

// Close marks one end of the pipe closed: the write end if writerSide,
// otherwise the read end. Wakes any blocked reader/writer so it can
// observe the new state.
func (p *Pipe) Close(writerSide bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if writerSide {
		p.writeOpen = false
		p.notEmpty.Broadcast()
	} else {
		p.readOpen = false
		p.notFull.Broadcast()
	}
}
