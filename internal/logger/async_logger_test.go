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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func setupAsyncLoggerTest(t *testing.T) string {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "async-logger-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return tempDir
}

func TestAsyncLogger_WriteAndClose(t *testing.T) {
	tempDir := setupAsyncLoggerTest(t)
	logPath := filepath.Join(tempDir, "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	asyncLogger := NewAsyncLogger(lj, 10)

	fmt.Fprintln(asyncLogger, "message 1")
	fmt.Fprintln(asyncLogger, "message 2")
	fmt.Fprintln(asyncLogger, "message 3")
	err := asyncLogger.Close()

	require.NoError(t, err)
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "message 1\nmessage 2\nmessage 3\n", string(content))
}

func TestAsyncLogger_DoubleCloseIsNoop(t *testing.T) {
	tempDir := setupAsyncLoggerTest(t)
	logPath := filepath.Join(tempDir, "test.log")
	asyncLogger := NewAsyncLogger(&lumberjack.Logger{Filename: logPath}, 4)

	fmt.Fprintln(asyncLogger, "one line")
	require.NoError(t, asyncLogger.Close())
	require.NoError(t, asyncLogger.Close())
}
