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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robledop/xv6/internal/bcache"
	"github.com/robledop/xv6/internal/cfg"
	"github.com/robledop/xv6/internal/ext2"
	"github.com/robledop/xv6/internal/filedevice"
	"github.com/robledop/xv6/internal/ftable"
	"github.com/robledop/xv6/internal/kernel"
	"github.com/robledop/xv6/internal/logger"
	"github.com/robledop/xv6/internal/namei"
	scall "github.com/robledop/xv6/internal/syscall"
)

var mountCmd = &cobra.Command{
	Use:   "mount <device-image> <mountpoint>",
	Short: "Mount an ext2 disk image and serve the syscall surface",
	Long: `mount opens device-image as a block device, mounts its ext2
volume, and serves open/read/write/close/link/unlink/mkdir/mknod/chdir
requests read as newline-delimited commands from stdin. mountpoint is
accepted for symmetry with mount(2) but otherwise unused: there is no
real FUSE/VFS kernel channel here (spec.md's Non-goals).`,
	Args: cobra.ExactArgs(2),
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	logger.Init(logger.Config{Severity: MountConfig.Logging.Severity, Format: MountConfig.Logging.Format})

	dev, err := filedevice.Open(imagePath, 0)
	if err != nil {
		return fmt.Errorf("opening device image: %w", err)
	}
	defer dev.Close()

	blockCacheSize := MountConfig.Cache.BlockCacheSize
	if blockCacheSize == 0 {
		blockCacheSize = cfg.DefaultBlockCacheSize
	}
	inodeCacheSize := MountConfig.Cache.InodeCacheSize
	if inodeCacheSize == 0 {
		inodeCacheSize = cfg.DefaultInodeCacheSize
	}
	fileTableSize := MountConfig.Cache.FileTableSize
	if fileTableSize == 0 {
		fileTableSize = cfg.DefaultFileTableSize
	}

	bc := bcache.New(dev, blockCacheSize)
	m, err := ext2.New(0, bc, inodeCacheSize)
	if err != nil {
		return fmt.Errorf("mounting ext2 volume: %w", err)
	}

	ni := namei.New(m.IC, m, m.Dev)
	ft := ftable.New(m.IC, m, fileTableSize)
	s := scall.New(m, ni, ft)

	root := m.IC.Iget(m.Dev, uint32(ext2.RootInum))
	p := &kernel.Process{}
	p.SetCwd(root)

	logger.Infof("mount: serving %s", imagePath)
	return serveRequests(cmd.InOrStdin(), cmd.OutOrStdout(), s, p)
}

// serveRequests runs the tiny in-process request loop: each line is one
// space-separated command, dispatched to the syscall surface and echoed
// back as a result line. This plays the role a real kernel's trap
// handler or a FUSE server's request loop would play, without either.
func serveRequests(in io.Reader, out io.Writer, s *scall.Syscalls, p *kernel.Process) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprintln(out, dispatch(s, p, line))
	}
	return scanner.Err()
}

func dispatch(s *scall.Syscalls, p *kernel.Process, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "-1"
	}

	switch fields[0] {
	case "open":
		if len(fields) != 3 {
			return "-1"
		}
		mode, err := strconv.Atoi(fields[2])
		if err != nil {
			return "-1"
		}
		return strconv.Itoa(s.Open(p, fields[1], mode))

	case "read":
		if len(fields) != 3 {
			return "-1"
		}
		fd, err := strconv.Atoi(fields[1])
		n, err2 := strconv.Atoi(fields[2])
		if err != nil || err2 != nil || n < 0 {
			return "-1"
		}
		buf := make([]byte, n)
		got := s.Read(p, fd, buf)
		if got < 0 {
			return "-1"
		}
		return string(buf[:got])

	case "write":
		if len(fields) < 3 {
			return "-1"
		}
		fd, err := strconv.Atoi(fields[1])
		if err != nil {
			return "-1"
		}
		payload := strings.Join(fields[2:], " ")
		return strconv.Itoa(s.Write(p, fd, []byte(payload)))

	case "close":
		if len(fields) != 2 {
			return "-1"
		}
		fd, err := strconv.Atoi(fields[1])
		if err != nil {
			return "-1"
		}
		return strconv.Itoa(s.Close(p, fd))

	case "mkdir":
		if len(fields) != 2 {
			return "-1"
		}
		return strconv.Itoa(s.Mkdir(p, fields[1]))

	case "mknod":
		if len(fields) != 4 {
			return "-1"
		}
		major, err := strconv.Atoi(fields[2])
		minor, err2 := strconv.Atoi(fields[3])
		if err != nil || err2 != nil {
			return "-1"
		}
		return strconv.Itoa(s.Mknod(p, fields[1], uint32(major), uint32(minor)))

	case "chdir":
		if len(fields) != 2 {
			return "-1"
		}
		return strconv.Itoa(s.Chdir(p, fields[1]))

	case "link":
		if len(fields) != 3 {
			return "-1"
		}
		return strconv.Itoa(s.Link(p, fields[1], fields[2]))

	case "unlink":
		if len(fields) != 2 {
			return "-1"
		}
		return strconv.Itoa(s.Unlink(p, fields[1]))

	case "dup":
		if len(fields) != 2 {
			return "-1"
		}
		fd, err := strconv.Atoi(fields[1])
		if err != nil {
			return "-1"
		}
		return strconv.Itoa(s.Dup(p, fd))

	case "fstat":
		if len(fields) != 2 {
			return "-1"
		}
		fd, err := strconv.Atoi(fields[1])
		if err != nil {
			return "-1"
		}
		var st ftable.Stat
		if s.Fstat(p, fd, &st) < 0 {
			return "-1"
		}
		return fmt.Sprintf("dev=%d ino=%d type=%d nlink=%d size=%d", st.Dev, st.Ino, st.Type, st.Nlink, st.Size)

	case "pipe":
		rfd, wfd, rc := s.Pipe(p)
		if rc < 0 {
			return "-1"
		}
		return fmt.Sprintf("%d %d", rfd, wfd)

	default:
		return "-1"
	}
}
