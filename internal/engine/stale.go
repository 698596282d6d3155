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

package engine

import (
	"sort"

	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// CleanStaleOutputs runs once, before the build proper begins: every
// invocation-log entry whose step-hash no longer appears in the
// compiled manifest is an orphan (its rule was deleted or edited out of
// existence), so its output files are unlinked and it is tombstoned.
// Directories Shuriken itself created are then rmdir'd in reverse order
// by path length, so a child is always removed before its parent is
// considered (spec §4.G "Stale-output deletion").
func (e *Engine) CleanStaleOutputs() error {
	known := map[fshash.Hash]bool{}
	for _, s := range e.Manifest.Steps {
		known[s.Hash] = true
	}

	for hash, entry := range e.Invocations.Entries {
		if known[hash] {
			continue
		}
		for _, idx := range entry.OutputFiles {
			if idx < 0 || idx >= len(e.Invocations.Fingerprints) {
				continue
			}
			path := e.Invocations.Fingerprints[idx].Path
			if info, err := e.FS.Lstat(path); err == nil && info.Kind != fsx.Missing {
				e.FS.Unlink(path)
			}
		}
		if err := e.Log.CleanedCommand(hash); err != nil {
			return err
		}
	}

	dirs := make([]string, 0, len(e.Invocations.CreatedDirectories))
	for _, path := range e.Invocations.CreatedDirectories {
		dirs = append(dirs, path)
	}
	sort.Slice(dirs, func(a, b int) bool { return len(dirs[a]) > len(dirs[b]) })
	for _, path := range dirs {
		info, err := e.FS.Lstat(path)
		if err != nil || info.Kind != fsx.Directory {
			continue
		}
		if err := e.FS.Rmdir(path); err == nil {
			e.Log.RemovedDirectory(path)
		}
	}
	return nil
}
