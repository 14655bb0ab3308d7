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

// Package cmd wires the Cobra command tree for ext2fsd: a root command
// carrying global config flags, and the mount/fsck subcommands.
//
// Grounded on the teacher's cmd/root.go (Cobra root, viper config-file
// binding, cfg.BindFlags wiring PersistentFlags into viper keys).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/robledop/xv6/internal/cfg"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// MountConfig is populated by initConfig before any subcommand's RunE
	// runs, the same timing the teacher relies on via cobra.OnInitialize.
	MountConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "ext2fsd",
	Short: "A minimal ext2 filesystem core: mount an image or check one for consistency",
	Long: `ext2fsd drives a teaching-kernel-style ext2 filesystem core: a
block cache, an inode cache, an ext2 layout driver, an open-file table,
and a path resolver, wired together over a raw disk image.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		return unmarshalErr
	},
}

// Execute runs the command tree, printing any error to stderr and
// exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}
