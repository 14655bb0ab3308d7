// Copyright 2023 Google Inc. All Rights Reserved.
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
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// textTimeLayout mirrors the fixed-width timestamp format gcsfuse's log
// parsers expect in text mode: "01/02/2006 15:04:05.000000" (26 bytes).
const textTimeLayout = "01/02/2006 15:04:05.000000"

// The kernel core logs at finer granularity than slog's built-in levels, so
// TRACE sits below DEBUG and WARNING sits between INFO and ERROR.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.Level(4)
	LevelError = slog.LevelError
	// LevelOff is above every real severity, so nothing is ever logged at it.
	LevelOff = slog.Level(12)
)

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// severityHandler renders records the way gcsfuse's operators expect:
// severity=LEVEL in text mode, a nested {seconds,nanos} timestamp in JSON
// mode. It intentionally does not delegate to slog's built-in handlers,
// whose level and time formatting don't match either wire format.
type severityHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  *slog.LevelVar
	format string // "text" or "json"
	prefix string
}

func newSeverityHandler(out io.Writer, level *slog.LevelVar, format, prefix string) *severityHandler {
	return &severityHandler{
		mu:     &sync.Mutex{},
		out:    out,
		level:  level,
		format: format,
		prefix: prefix,
	}
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	msg := h.prefix + r.Message

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.format == "json" {
		_, err := fmt.Fprintf(h.out,
			"{\"timestamp\":{\"seconds\":%d,\"nanos\":%d},\"severity\":%q,\"message\":%q}\n",
			r.Time.Unix(), r.Time.Nanosecond(), severityName(r.Level), msg)
		return err
	}

	_, err := fmt.Fprintf(h.out, "time=%q severity=%s message=%q\n",
		r.Time.Format(textTimeLayout), severityName(r.Level), msg)
	return err
}

func (h *severityHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(_ string) slog.Handler      { return h }
