// Copyright 2025 Google LLC
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

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AsyncLogger decouples log formatting from the underlying writer so the
// bcache/ext2 hot path (which logs at TRACE) never blocks on file or disk
// I/O. Writes are queued on a bounded channel and drained by one
// background goroutine; a full queue drops the message rather than
// blocking the caller, since a lost trace line is cheaper than a stalled
// filesystem operation.
type AsyncLogger struct {
	w       io.WriteCloser
	queue   chan []byte
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewAsyncLogger starts the draining goroutine and returns a ready logger.
func NewAsyncLogger(w io.WriteCloser, bufferSize int) *AsyncLogger {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	l := &AsyncLogger{
		w:     w,
		queue: make(chan []byte, bufferSize),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

func (l *AsyncLogger) drain() {
	defer close(l.done)
	for msg := range l.queue {
		_, _ = l.w.Write(msg)
	}
}

// Write implements io.Writer. It copies p, since the caller may reuse its
// buffer after Write returns.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case l.queue <- buf:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close drains remaining buffered messages and closes the underlying
// writer. Safe to call once.
func (l *AsyncLogger) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	close(l.queue)
	<-l.done
	return l.w.Close()
}

// newRotatingWriter grounds file-based logging on lumberjack, the same
// rotation library the teacher uses, instead of hand-rolling log rotation.
func newRotatingWriter(path string, maxSizeMB, maxBackups int) *lumberjack.Logger {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}
