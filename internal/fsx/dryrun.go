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

package fsx

import (
	"fmt"
	"io"

	"github.com/maruel/shuriken/internal/fshash"
)

// DryRun decorates a FileSystem, intercepting every mutation (mkdir, rmdir,
// unlink, rename, symlink, truncate, write-open) and returning success
// without touching disk, per spec §4.B. Reads pass through to the
// underlying filesystem unchanged so -n builds still see real content for
// fingerprinting decisions made before the (skipped) command would have
// run.
type DryRun struct {
	Underlying FileSystem
}

// NewDryRun wraps fs for use during a -n build.
func NewDryRun(fs FileSystem) *DryRun { return &DryRun{Underlying: fs} }

func (d *DryRun) Lstat(path string) (Info, error) { return d.Underlying.Lstat(path) }
func (d *DryRun) Stat(path string) (Info, error)  { return d.Underlying.Stat(path) }
func (d *DryRun) Open(path string) (io.ReadCloser, error) { return d.Underlying.Open(path) }
func (d *DryRun) Mmap(path string) ([]byte, io.Closer, error) { return d.Underlying.Mmap(path) }
func (d *DryRun) ReadDir(path string) ([]string, error)      { return d.Underlying.ReadDir(path) }
func (d *DryRun) ReadSymlink(path string) (string, error)    { return d.Underlying.ReadSymlink(path) }
func (d *DryRun) HashFile(path string) (fshash.Hash, error)  { return d.Underlying.HashFile(path) }

// discard is a no-op WriteCloser returned for every write path so callers
// see ordinary success without any bytes landing on disk.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }

func (d *DryRun) Create(path string) (io.WriteCloser, error) { return discard{}, nil }

func (d *DryRun) Mkstemp(dir, pattern string) (string, io.WriteCloser, error) {
	// Still must preserve the "invalid input still fails" error semantics:
	// check the directory is statable the way a real mkstemp would.
	info, err := d.Underlying.Stat(dir)
	if err != nil {
		return "", nil, err
	}
	if info.Kind != Directory {
		return "", nil, fmt.Errorf("fsx: mkstemp in %s: not a directory", dir)
	}
	return dir + "/" + pattern + ".dryrun", discard{}, nil
}

func (d *DryRun) Mkdir(path string) error               { return nil }
func (d *DryRun) Rmdir(path string) error               { return nil }
func (d *DryRun) Unlink(path string) error              { return nil }
func (d *DryRun) Rename(oldpath, newpath string) error  { return nil }
func (d *DryRun) Symlink(target, linkpath string) error { return nil }
func (d *DryRun) Truncate(path string, size int64) error {
	return nil
}
