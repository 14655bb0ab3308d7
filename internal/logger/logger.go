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

// Package logger provides the structured logging used throughout the
// filesystem core: a severity-leveled logger built on the standard
// library's log/slog, with a text or JSON wire format and an optional
// rotating file sink for the hot read/write path.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/robledop/xv6/internal/config"
)

// loggerFactory builds slog.Loggers sharing one output, format, and level.
type loggerFactory struct {
	format string // "text" or "json"
	level  *slog.LevelVar
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return newSeverityHandler(w, level, f.format, prefix)
}

func (f *loggerFactory) newLogger(w io.Writer) *slog.Logger {
	return slog.New(f.createJsonOrTextHandler(w, f.level, f.prefix))
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text", level: new(slog.LevelVar)}
	defaultLogger        = defaultLoggerFactory.newLogger(os.Stderr)
)

// setLoggingLevel maps a config.Severity name onto the slog.LevelVar that
// gates defaultLogger, mutating it in place so already-constructed loggers
// pick up the change.
func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case config.TRACE:
		programLevel.Set(LevelTrace)
	case config.DEBUG:
		programLevel.Set(LevelDebug)
	case config.INFO:
		programLevel.Set(LevelInfo)
	case config.WARNING:
		programLevel.Set(LevelWarn)
	case config.ERROR:
		programLevel.Set(LevelError)
	case config.OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

// Config controls Init.
type Config struct {
	Severity string // one of config.{TRACE,DEBUG,INFO,WARNING,ERROR,OFF}
	Format   string // "text" or "json"
	// LogFile, when non-empty, routes output through a rotating file sink
	// (see NewAsyncLogger) instead of stderr.
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
}

// Init reconfigures the package-level logger used by Tracef/Debugf/etc.
// Safe to call once at startup, before any goroutine starts logging.
func Init(cfg Config) {
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	defaultLoggerFactory.format = format

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = NewAsyncLogger(newRotatingWriter(cfg.LogFile, cfg.MaxSizeMB, cfg.MaxBackups), 1024)
	}

	setLoggingLevel(cfg.Severity, defaultLoggerFactory.level)
	defaultLogger = defaultLoggerFactory.newLogger(out)
}

var bgCtx = context.Background()

func Tracef(format string, v ...any) { defaultLogger.Log(bgCtx, LevelTrace, sprintf(format, v...)) }
func Debugf(format string, v ...any) { defaultLogger.Log(bgCtx, LevelDebug, sprintf(format, v...)) }
func Infof(format string, v ...any)  { defaultLogger.Log(bgCtx, LevelInfo, sprintf(format, v...)) }
func Warnf(format string, v ...any)  { defaultLogger.Log(bgCtx, LevelWarn, sprintf(format, v...)) }
func Errorf(format string, v ...any) { defaultLogger.Log(bgCtx, LevelError, sprintf(format, v...)) }

// Fatalf logs at ERROR and then terminates the process with os.Exit(1).
// Used for block-device I/O errors, inode read/write/truncate failures,
// and short writes. Corruption and lock-misuse checks (a bad rec_len, a
// double bfree, releasing an unheld lock) panic instead of calling it.
func Fatalf(format string, v ...any) {
	Errorf(format, v...)
	os.Exit(1)
}

func sprintf(format string, v ...any) string {
	if len(v) == 0 {
		return format
	}
	return fmt.Sprintf(format, v...)
}
