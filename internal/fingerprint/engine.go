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

package fingerprint

import (
	"time"

	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// Engine takes and matches fingerprints against a FileSystem.
type Engine struct {
	FS fsx.FileSystem
	// Clock supplies "now" for the timestamp recorded on rehash and for
	// deciding whether a rehashed fingerprint would be race-safe. Tests
	// substitute a fixed clock to make race-safety deterministic.
	Clock func() time.Time
}

// NewEngine binds a fingerprint Engine to fs, using the real wall clock.
func NewEngine(fs fsx.FileSystem) *Engine {
	return &Engine{FS: fs, Clock: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Take produces a fresh fingerprint for path as of now. A fingerprint hash
// error (e.g. the file vanished mid-hash) is reported to the caller, who per
// spec §7 treats it as dirty rather than fatal.
func (e *Engine) Take(now time.Time, path string) (Fingerprint, error) {
	info, err := e.FS.Lstat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	fp := Fingerprint{
		Size:      info.Size,
		Mode:      info.Kind,
		Ino:       info.Ino,
		Dev:       info.Dev,
		MTime:     info.MTime,
		CTime:     info.CTime,
		Timestamp: now,
	}
	switch info.Kind {
	case fsx.Missing:
		fp.Hash = fshash.Hash{}
	case fsx.Directory:
		names, err := e.FS.ReadDir(path)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.Hash = fshash.DirNames(names)
	case fsx.Symlink:
		target, err := e.FS.ReadSymlink(path)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.Hash = fshash.SymlinkTarget(target)
	default:
		h, err := e.FS.HashFile(path)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.Hash = h
	}
	return fp, nil
}

// Match compares stored against the current filesystem state of path,
// classifying the result as clean, dirty, or clean-needing-relog, per spec
// §4.D.
func (e *Engine) Match(path string, stored Fingerprint) (MatchesResult, error) {
	info, err := e.FS.Lstat(path)
	if err != nil {
		return MatchesResult{}, err
	}
	currentlyMissing := info.Kind == fsx.Missing
	storedMissing := stored.Mode == fsx.Missing
	if currentlyMissing != storedMissing {
		return MatchesResult{Clean: false}, nil
	}
	if currentlyMissing {
		// Both missing: nothing to compare further, clean.
		return MatchesResult{Clean: true}, nil
	}
	if info.Size != stored.Size {
		return MatchesResult{Clean: false}, nil
	}

	current := Fingerprint{
		Size: info.Size, Mode: info.Kind, Ino: info.Ino, Dev: info.Dev,
		MTime: info.MTime, CTime: info.CTime,
	}
	metadataEqual := sameMetadata(current, stored) && current.Mode == stored.Mode

	if metadataEqual {
		if stored.RaceSafe() {
			return MatchesResult{Clean: true}, nil
		}
		nowSafe := stored.Timestamp.After(current.MTime) && stored.Timestamp.After(current.CTime)
		if nowSafe {
			return MatchesResult{Clean: true, ShouldUpdate: true}, nil
		}
	}

	// Metadata differs, or timestamps are still racy: fall back to a
	// rehash, taken as of now so ShouldUpdate reflects whether a relogged
	// fingerprint would be race-safe.
	fresh, err := e.Take(e.now(), path)
	if err != nil {
		return MatchesResult{}, err
	}
	if fresh.Hash != stored.Hash {
		return MatchesResult{Clean: false}, nil
	}
	return MatchesResult{Clean: true, ShouldUpdate: fresh.RaceSafe()}, nil
}

// Retake is like Take, but if old matches the current filesystem and was
// already race-safe, old is returned unchanged, avoiding a rehash.
func (e *Engine) Retake(now time.Time, path string, old Fingerprint) (Fingerprint, error) {
	res, err := e.Match(path, old)
	if err != nil {
		return Fingerprint{}, err
	}
	if res.Clean && old.RaceSafe() {
		return old, nil
	}
	return e.Take(now, path)
}
