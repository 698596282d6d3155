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

package buildgraph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

var errSidecarVersionMismatch = errors.New("buildgraph: sidecar version mismatch")

// sidecarMagic lets LoadSidecar reject a file that isn't one of ours
// before even looking at the flatbuffers payload.
const sidecarMagic uint64 = 0x53484b4d414e4631 // "SHKMANF1"

// SaveSidecar writes cm to path as a cached CompiledManifest: an 8-byte
// little-endian magic word, an 8-byte little-endian version word, then a
// flatbuffers-serialized payload (spec §4.E, "serialized to a sidecar
// file").
func SaveSidecar(path string, cm *CompiledManifest) error {
	payload := encodeManifest(cm)
	header := make([]byte, 16)
	binary.LittleEndian.PutUint64(header[0:8], sidecarMagic)
	binary.LittleEndian.PutUint64(header[8:16], sidecarVersion)
	f, err := os.CreateTemp(dirOf(path), ".shk-manifest-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadSidecar reads back a CompiledManifest written by SaveSidecar. It
// returns (nil, nil) if path doesn't exist: callers treat a missing
// sidecar as a cold cache, not an error.
func LoadSidecar(path string) (*CompiledManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) < 16 {
		return nil, fmt.Errorf("buildgraph: sidecar %s is truncated", path)
	}
	magic := binary.LittleEndian.Uint64(raw[0:8])
	if magic != sidecarMagic {
		return nil, fmt.Errorf("buildgraph: sidecar %s has an unrecognized header", path)
	}
	version := binary.LittleEndian.Uint64(raw[8:16])
	if version != sidecarVersion {
		return nil, errSidecarVersionMismatch
	}
	return decodeManifest(raw[16:])
}

// SidecarFresh reports whether the sidecar at path is at least as new as
// every file the compiled manifest was built from (spec §4.E: "freshness
// determined by an mtime comparison against manifest inputs"), avoiding
// the cost of reparsing and recompiling the manifest on every invocation
// when nothing relevant changed.
func SidecarFresh(sidecarPath string, manifestFiles []string) bool {
	sidecarInfo, err := os.Stat(sidecarPath)
	if err != nil {
		return false
	}
	for _, f := range manifestFiles {
		info, err := os.Stat(f)
		if err != nil {
			return false
		}
		if info.ModTime().After(sidecarInfo.ModTime()) {
			return false
		}
	}
	return true
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
