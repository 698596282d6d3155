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

// Package fingerprint implements the race-free fingerprint scheme: taking a
// snapshot of a file's identity, matching it against the current
// filesystem, and retaking it without rehashing when that is safe.
package fingerprint

import (
	"time"

	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// Fingerprint is a compact record sufficient to decide whether a file's
// content has changed since it was taken (spec §3).
type Fingerprint struct {
	Size      int64
	Mode      fsx.Kind
	Ino, Dev  uint64
	MTime     time.Time
	CTime     time.Time
	Hash      fshash.Hash
	Timestamp time.Time
}

// RaceSafe reports whether the fingerprint can be matched against the
// filesystem without ever needing to rehash: its take-timestamp must
// strictly exceed both the file's mtime and ctime at take time.
func (f Fingerprint) RaceSafe() bool {
	return f.Timestamp.After(f.MTime) && f.Timestamp.After(f.CTime)
}

func (f Fingerprint) fileId() fshash.FileId {
	return fshash.FileId{Dev: f.Dev, Ino: f.Ino}
}

// sameMetadata reports whether two fingerprints describe the same
// (ino, dev, mode-type, size, mtime, ctime) tuple, the precondition for
// skipping a rehash in match() step 3/4.
func sameMetadata(a, b Fingerprint) bool {
	return a.Ino == b.Ino && a.Dev == b.Dev && a.Mode == b.Mode &&
		a.Size == b.Size && a.MTime.Equal(b.MTime) && a.CTime.Equal(b.CTime)
}

// MatchesResult is the output of matching a stored fingerprint against the
// current filesystem.
type MatchesResult struct {
	// Clean reports whether the file's content is unchanged.
	Clean bool
	// ShouldUpdate is set when Clean is true and the stored fingerprint
	// was not race-safe at take time but a fresh take would be race-safe
	// now: the log should be rewritten with a safer fingerprint.
	ShouldUpdate bool
}
