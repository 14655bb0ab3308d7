// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package cfg is the viper/pflag-bound configuration surface for the
// ext2fsd binary, grounded on the teacher's generated cfg.Config: one
// struct of YAML-tagged sections, one BindFlags that wires every field
// to both a flag and a viper key so a config file and the command line
// agree on the same names.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/robledop/xv6/internal/config"
)

// Config is the full set of tunables the filesystem core reads at
// startup. Every section mirrors one subsystem's knobs.
type Config struct {
	Debug   DebugConfig   `yaml:"debug"`
	Cache   CacheConfig   `yaml:"cache"`
	Process ProcessConfig `yaml:"process"`
	Logging LoggingConfig `yaml:"logging"`
}

// DebugConfig controls how aggressively invariant violations are
// surfaced.
type DebugConfig struct {
	// ExitOnInvariantViolation is bound to the debug_invariants flag and
	// the debug.exit-on-invariant-violation key. No code in this module
	// reads it: corruption and concurrency-misuse checks panic regardless.
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	// LogMutex is bound to the debug_mutex flag and the debug.log-mutex
	// key. No code in this module reads it; sleep locks log nothing about
	// hold times.
	LogMutex bool `yaml:"log-mutex"`
}

// CacheConfig sizes the three fixed-capacity tables spec.md §6 names.
type CacheConfig struct {
	BlockCacheSize int `yaml:"block-cache-size"`
	InodeCacheSize int `yaml:"inode-cache-size"`
	FileTableSize  int `yaml:"file-table-size"`
}

// ProcessConfig sizes per-process resources.
type ProcessConfig struct {
	MaxOpenFiles int `yaml:"max-open-files"`
}

// LoggingConfig selects the logger's verbosity and wire format.
type LoggingConfig struct {
	Severity string `yaml:"severity"`
	Format   string `yaml:"format"`
}

// BindFlags registers every Config field as a flag on flagSet and binds
// it to the matching viper key, so a YAML config file and command-line
// flags populate the same Config.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("debug_invariants", "", false, "Sets debug.exit-on-invariant-violation (not read by any command).")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Sets debug.log-mutex (not read by any command).")
	if err = viper.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex")); err != nil {
		return err
	}

	flagSet.IntP("block-cache-size", "", DefaultBlockCacheSize, "Number of buffers in the block cache.")
	if err = viper.BindPFlag("cache.block-cache-size", flagSet.Lookup("block-cache-size")); err != nil {
		return err
	}

	flagSet.IntP("inode-cache-size", "", DefaultInodeCacheSize, "Number of slots in the inode cache.")
	if err = viper.BindPFlag("cache.inode-cache-size", flagSet.Lookup("inode-cache-size")); err != nil {
		return err
	}

	flagSet.IntP("file-table-size", "", DefaultFileTableSize, "Number of slots in the open-file table.")
	if err = viper.BindPFlag("cache.file-table-size", flagSet.Lookup("file-table-size")); err != nil {
		return err
	}

	flagSet.IntP("max-open-files", "", DefaultMaxOpenFiles, "Open-file descriptors per process.")
	if err = viper.BindPFlag("process.max-open-files", flagSet.Lookup("max-open-files")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", config.INFO, "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log line format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	return nil
}
