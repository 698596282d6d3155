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
	"os"
	"syscall"

	"github.com/maruel/shuriken/internal/fshash"
)

// Real is the FileSystem implementation that actually hits the disk.
type Real struct{}

// NewReal returns a FileSystem backed by the host.
func NewReal() *Real { return &Real{} }

func statToInfo(fi os.FileInfo) Info {
	info := Info{Size: fi.Size(), MTime: fi.ModTime()}
	switch {
	case fi.Mode().IsDir():
		info.Kind = Directory
	case fi.Mode()&os.ModeSymlink != 0:
		info.Kind = Symlink
	case fi.Mode().IsRegular():
		info.Kind = Regular
	default:
		info.Kind = Other
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		info.Dev = uint64(st.Dev)
		info.Ino = uint64(st.Ino)
		info.CTime = ctimeOf(st)
	}
	return info
}

func (r *Real) lstatOrStat(path string, followSymlink bool) (Info, error) {
	var fi os.FileInfo
	var err error
	if followSymlink {
		fi, err = os.Stat(path)
	} else {
		fi, err = os.Lstat(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return Info{Kind: Missing}, nil
		}
		return Info{}, err
	}
	return statToInfo(fi), nil
}

func (r *Real) Lstat(path string) (Info, error) { return r.lstatOrStat(path, false) }
func (r *Real) Stat(path string) (Info, error)  { return r.lstatOrStat(path, true) }

func (r *Real) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

func (r *Real) Create(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func (r *Real) Mkstemp(dir, pattern string) (string, io.WriteCloser, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}

func (r *Real) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (r *Real) ReadSymlink(path string) (string, error) { return os.Readlink(path) }

func (r *Real) Mkdir(path string) error {
	err := os.Mkdir(path, 0777)
	if err != nil && os.IsExist(err) {
		return nil
	}
	return err
}

func (r *Real) Rmdir(path string) error { return os.Remove(path) }
func (r *Real) Unlink(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
func (r *Real) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (r *Real) Symlink(target, linkpath string) error { return os.Symlink(target, linkpath) }
func (r *Real) Truncate(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (r *Real) HashFile(path string) (fshash.Hash, error) {
	f, err := r.Open(path)
	if err != nil {
		return fshash.Hash{}, fmt.Errorf("hashFile(%s): %w", path, err)
	}
	defer f.Close()
	return fshash.FromReader(f)
}
