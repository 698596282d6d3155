// Copyright 2011 Google Inc. All Rights Reserved.
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

// Package fsx is the pluggable filesystem abstraction every disk access in
// Shuriken goes through. Real backs onto the host; DryRun
// decorates it for -n builds.
package fsx

import (
	"io"
	"time"

	"github.com/maruel/shuriken/internal/fshash"
)

// Kind is the file-type half of a Fingerprint's mode bits.
type Kind uint8

const (
	Missing Kind = iota
	Regular
	Directory
	Symlink
	Other
)

// Info is the metadata a successful Lstat yields.
type Info struct {
	Kind        Kind
	Size        int64
	Dev, Ino    uint64
	MTime       time.Time
	CTime       time.Time
}

// FileSystem is the abstract disk every engine component uses. Every
// fallible operation returns an explicit error; a missing file is not an
// error for Lstat/Stat (it yields Info{Kind: Missing}), but is an error for
// the content-reading operations. Real's Unlink of a missing path and Mkdir
// of an existing path succeed, and its Truncate creates a missing file.
type FileSystem interface {
	// Lstat stats path without following a trailing symlink. A
	// nonexistent path yields Info{Kind: Missing}, nil.
	Lstat(path string) (Info, error)
	// Stat stats path, following symlinks.
	Stat(path string) (Info, error)

	// Open opens path for streaming reads, used by hashing.
	Open(path string) (io.ReadCloser, error)
	// Mmap memory-maps path for read access; the returned closer must be
	// called to release the mapping.
	Mmap(path string) ([]byte, io.Closer, error)
	// Create truncates-or-creates path for writing.
	Create(path string) (io.WriteCloser, error)
	// Mkstemp creates a unique file in dir matching pattern (a
	// "prefix*suffix" glob as in os.CreateTemp) and returns its path and
	// an open handle.
	Mkstemp(dir, pattern string) (string, io.WriteCloser, error)

	// ReadDir lists the immediate children of path, for directory
	// fingerprinting.
	ReadDir(path string) ([]string, error)
	// ReadSymlink returns a symlink's target.
	ReadSymlink(path string) (string, error)

	// Mkdir makes a single directory level (no -p semantics; callers
	// walk parents themselves, as the engine does for output_dirs).
	Mkdir(path string) error
	// Rmdir removes an empty directory.
	Rmdir(path string) error
	// Unlink removes a single file.
	Unlink(path string) error
	// Rename atomically renames oldpath to newpath.
	Rename(oldpath, newpath string) error
	// Symlink creates a symlink at linkpath pointing at target.
	Symlink(target, linkpath string) error
	// Truncate sets path's size, creating it if absent.
	Truncate(path string, size int64) error

	// HashFile computes the content hash of path's current bytes by
	// streaming it through Open; directories and symlinks are hashed by
	// their own rule (see fingerprint.Engine.Take), not through this
	// call.
	HashFile(path string) (fshash.Hash, error)
}
