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

// Package config holds the small set of cross-cutting constants shared
// between internal/cfg and internal/logger, kept in their own package to
// avoid an import cycle between the two.
package config

// Severity is a logging level name, ordered from least to most severe.
const (
	OFF     = "OFF"
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
)

// severityRank orders the named levels so the logger can decide whether a
// call site's level is enabled for the configured minimum.
var severityRank = map[string]int{
	TRACE:   0,
	DEBUG:   1,
	INFO:    2,
	WARNING: 3,
	ERROR:   4,
	OFF:     5,
}

// Enabled reports whether a log statement at level should be emitted when
// the configured minimum severity is min.
func Enabled(level, min string) bool {
	lr, ok := severityRank[level]
	if !ok {
		return true
	}
	mr, ok := severityRank[min]
	if !ok {
		return true
	}
	return lr >= mr
}
