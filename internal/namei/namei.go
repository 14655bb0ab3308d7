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

// Package namei resolves slash-separated path names to inodes (spec.md
// §4.5), the way fuseutil's FileSystem implementations walk a parent
// directory's DirEnt list one component at a time — except here the
// walk happens against the icache/ext2 layers directly rather than
// through a FUSE op dispatcher.
//
// Grounded on original_source/kernel/fs.c's skipelem and namex.
package namei

import (
	"github.com/robledop/xv6/internal/icache"
	"github.com/robledop/xv6/internal/kerrors"
)

// RootInum is the ext2 root directory's inode number.
const RootInum = 2

// maxNameLen bounds a single path component (spec.md §4.5: "if the
// copied length exceeds 255, return the error sentinel").
const maxNameLen = 255

// DirLookuper is the directory-lookup surface namei needs from the
// on-disk driver. Implemented by *ext2.Mount.
type DirLookuper interface {
	Dirlookup(dp *icache.Inode, name string, poff *uint32) *icache.Inode
}

// Resolver walks paths against an inode cache and directory driver.
type Resolver struct {
	IC      *icache.Cache
	FS      DirLookuper
	RootDev uint32
}

// New builds a Resolver rooted at rootDev's root inode.
func New(ic *icache.Cache, fs DirLookuper, rootDev uint32) *Resolver {
	return &Resolver{IC: ic, FS: fs, RootDev: rootDev}
}

// skipelem copies the next slash-delimited component off the front of
// path, returning it along with the remainder (with leading and
// trailing slashes stripped) and ok=false once nothing remains.
func skipelem(path string) (elem, rest string, ok bool, err error) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return "", "", false, nil
	}
	start := i
	for i < len(path) && path[i] != '/' {
		i++
	}
	elem = path[start:i]
	if len(elem) > maxNameLen {
		return "", "", false, kerrors.ErrNameTooLong
	}
	for i < len(path) && path[i] == '/' {
		i++
	}
	return elem, path[i:], true, nil
}

// Namex resolves path, starting from cwd when path is relative (cwd is
// not consumed; Namex takes its own reference via Idup). If wantParent
// is true, resolution stops one component early and the final
// component's name is returned alongside its parent directory's inode;
// otherwise the full resolution's inode is returned and name is empty.
//
// Returns kerrors.ErrNotFound if any component along the way is
// missing, and kerrors.ErrNotDir if a non-terminal component isn't a
// directory.
func (r *Resolver) Namex(path string, wantParent bool, cwd *icache.Inode) (ip *icache.Inode, name string, err error) {
	if len(path) > 0 && path[0] == '/' {
		ip = r.IC.Iget(r.RootDev, RootInum)
	} else {
		ip = r.IC.Idup(cwd)
	}

	rest := path
	for {
		var elem string
		var ok bool
		elem, rest, ok, err = skipelem(rest)
		if err != nil {
			r.IC.Iput(ip)
			return nil, "", err
		}
		if !ok {
			break
		}

		r.IC.Ilock(ip)
		if ip.Type != icache.TypeDir {
			r.IC.IunlockPut(ip)
			return nil, "", kerrors.ErrNotDir
		}

		if wantParent && isLast(rest) {
			r.IC.Iunlock(ip)
			return ip, elem, nil
		}

		next := r.FS.Dirlookup(ip, elem, nil)
		if next == nil {
			r.IC.IunlockPut(ip)
			return nil, "", kerrors.ErrNotFound
		}
		r.IC.IunlockPut(ip)
		ip = next
	}

	if wantParent {
		r.IC.Iput(ip)
		return nil, "", kerrors.ErrNotFound
	}
	return ip, "", nil
}

// isLast reports whether rest names no further components, i.e.
// skipelem(rest) would yield ok=false.
func isLast(rest string) bool {
	for i := 0; i < len(rest); i++ {
		if rest[i] != '/' {
			return false
		}
	}
	return true
}

// Namei resolves path to its final inode.
func (r *Resolver) Namei(path string, cwd *icache.Inode) (*icache.Inode, error) {
	ip, _, err := r.Namex(path, false, cwd)
	return ip, err
}

// NameiParent resolves path's parent directory, returning the final
// component's name alongside it.
func (r *Resolver) NameiParent(path string, cwd *icache.Inode) (dir *icache.Inode, name string, err error) {
	return r.Namex(path, true, cwd)
}
