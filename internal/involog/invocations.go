// Copyright 2012 Google Inc. All Rights Reserved.
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

// Package involog implements the append-only invocation log: the binary
// format, its parser and appender, a delayed appender that defers writes
// across a race boundary, and a compactor.
package involog

import (
	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// FingerprintRecord is one row of the log's shared fingerprint table: the
// path it was taken for, and the fingerprint itself.
type FingerprintRecord struct {
	Path        string
	Fingerprint fingerprint.Fingerprint
}

// Entry is the per-step record kept in the log, spec §3.
type Entry struct {
	// OutputFiles and InputFiles are indices into Invocations.Fingerprints.
	OutputFiles []int
	InputFiles  []int
	// IgnoredDependencies are declared inputs the step did not actually
	// read, recorded as positions in the writing step's Inputs list; they
	// are not indices into the manifest's Steps.
	IgnoredDependencies []uint32
	// AdditionalDependencies are undeclared reads of other steps'
	// outputs, recorded by the producing step's hash.
	AdditionalDependencies []fshash.Hash
}

// Invocations is the log as loaded into memory.
type Invocations struct {
	Fingerprints []FingerprintRecord
	Entries      map[fshash.Hash]Entry
	// CreatedDirectories maps a directory Shuriken itself created to its
	// path, keyed by FileId so orphans can be identified without
	// depending on path identity alone.
	CreatedDirectories map[fshash.FileId]string
}

// NewInvocations returns an empty, ready-to-use Invocations.
func NewInvocations() *Invocations {
	return &Invocations{
		Entries:            map[fshash.Hash]Entry{},
		CreatedDirectories: map[fshash.FileId]string{},
	}
}

// ResolveCreatedDirectories stats every path in paths and records it under
// its current FileId. A directory whose stat fails or is no longer a
// directory is simply dropped: the parser only knows it by path, not by
// inode, so the live FileId must be observed once a FileSystem is
// available (spec §3's created_directories is keyed by FileId precisely so
// a directory the user replaced with something else is never rmdir'd; see
// internal/engine's stale-output deletion).
func (inv *Invocations) ResolveCreatedDirectories(fs fsx.FileSystem, paths []string) {
	for _, path := range paths {
		info, err := fs.Lstat(path)
		if err != nil || info.Kind != fsx.Directory {
			continue
		}
		inv.CreatedDirectories[fshash.FileId{Dev: info.Dev, Ino: info.Ino}] = path
	}
}
