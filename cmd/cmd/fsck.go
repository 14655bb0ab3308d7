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

package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/robledop/xv6/internal/bcache"
	"github.com/robledop/xv6/internal/cfg"
	"github.com/robledop/xv6/internal/ext2"
	"github.com/robledop/xv6/internal/filedevice"
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/logger"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <device-image>",
	Short: "Read-only consistency walk of an ext2 volume",
	Long: `fsck mounts device-image read-only (in the sense that it never
calls a write path) and walks every reachable directory entry, reporting
inodes spec.md §8 would flag as corrupt: a zero link count on a
reachable inode, or a directory entry pointing at something that isn't
a directory where one was expected. It does not repair anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runFsck,
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}

// fsckReport accumulates problems found concurrently by the directory
// walk's fan-out.
type fsckReport struct {
	mu       sync.Mutex
	problems []string
}

func (r *fsckReport) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

func runFsck(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	scanID := uuid.NewString()

	dev, err := filedevice.Open(imagePath, 0)
	if err != nil {
		return fmt.Errorf("opening device image: %w", err)
	}
	defer dev.Close()

	bc := bcache.New(dev, cfg.DefaultBlockCacheSize)
	m, err := ext2.New(0, bc, cfg.DefaultInodeCacheSize)
	if err != nil {
		return fmt.Errorf("mounting ext2 volume: %w", err)
	}

	logger.Infof("fsck: scan %s starting on %s", scanID, imagePath)

	report := &fsckReport{}
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(8)

	root := m.IC.Iget(m.Dev, uint32(ext2.RootInum))
	walkDir(g, ctx, m, root, "/", report)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fsck %s: %w", scanID, err)
	}

	if len(report.problems) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "fsck %s: clean\n", scanID)
		return nil
	}
	for _, p := range report.problems {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return fmt.Errorf("fsck %s: %d problem(s) found", scanID, len(report.problems))
}

// walkDir consumes one reference to dir (acquired by the caller via
// Iget), walking its live entries and fanning child directories out
// onto g. Non-directory children are visited but not recursed into.
func walkDir(g *errgroup.Group, ctx context.Context, m *ext2.Mount, dir *icache.Inode, path string, report *fsckReport) {
	m.IC.Ilock(dir)
	if dir.Type != icache.TypeDir {
		report.add("%s: expected a directory, found type %v", path, dir.Type)
		m.IC.IunlockPut(dir)
		return
	}

	var entries []ext2.DirEntry
	m.Dirwalk(dir, func(e ext2.DirEntry) bool {
		if e.Name != "." && e.Name != ".." {
			entries = append(entries, e)
		}
		return true
	})
	m.IC.IunlockPut(dir)

	for _, e := range entries {
		e := e
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			child := m.IC.Iget(m.Dev, e.Inode)
			m.IC.Ilock(child)
			if child.Nlink == 0 {
				report.add("%s%s: inode %d is reachable but has a zero link count", path, e.Name, e.Inode)
			}
			typ := child.Type
			m.IC.Iunlock(child)

			if typ == icache.TypeDir {
				walkDir(g, ctx, m, child, path+e.Name+"/", report)
			} else {
				m.IC.Iput(child)
			}
			return nil
		})
	}
}
