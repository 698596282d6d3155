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

package involog

import (
	"os"
	"time"

	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// Opened bundles everything the orchestrator needs from a loaded log: the
// parsed state, a Log to append through for the rest of the build, and a
// close function that must run once, after the final Flush.
type Opened struct {
	Parsed *Parsed
	Log    *DelayedAppender
	file   *os.File
}

// Close releases the underlying file handle; callers must Flush the Log
// before calling Close.
func (o *Opened) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

// Open loads path (creating it with a fresh header if absent), and wires a
// DelayedAppender bound to fs/engine/clock for writing new entries for the
// rest of the build. dryRun skips opening the file for write entirely and
// returns a Log that discards everything, matching the "-n" CLI flag.
func Open(path string, fs fsx.FileSystem, engine *fingerprint.Engine, clock func() time.Time, dryRun bool) (*Opened, error) {
	parsed, existed, err := Load(path)
	if err != nil {
		return nil, err
	}
	if parsed.NeedsRecompaction && !dryRun {
		if err := Compact(path, parsed.Invocations, parsed.CreatedDirectoryPaths); err != nil {
			return nil, err
		}
		if parsed, existed, err = Load(path); err != nil {
			return nil, err
		}
	}
	parsed.Invocations.ResolveCreatedDirectories(fs, parsed.CreatedDirectoryPaths)

	if dryRun {
		return &Opened{Parsed: parsed, Log: NewDelayedAppender(noopLog{}, fs, clock)}, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	if !existed {
		if err := writeHeader(f); err != nil {
			f.Close()
			return nil, err
		}
	} else if parsed.Truncated {
		if err := f.Truncate(parsed.GoodBytes); err != nil {
			f.Close()
			return nil, err
		}
		if _, err := f.Seek(0, os.SEEK_END); err != nil {
			f.Close()
			return nil, err
		}
	}

	appender := NewAppender(f, parsed, engine, clock)
	delayed := NewDelayedAppender(appender, fs, clock)
	return &Opened{Parsed: parsed, Log: delayed, file: f}, nil
}

// noopLog discards every write; used for -n dry runs, where the command
// runner completes instantly and nothing should be persisted.
type noopLog struct{}

func (noopLog) CreatedDirectory(string) error { return nil }
func (noopLog) RemovedDirectory(string) error { return nil }
func (noopLog) RanCommand(step fshash.Hash, outputs, inputs []string, ignored []uint32, additional []fshash.Hash) error {
	return nil
}
func (noopLog) CleanedCommand(step fshash.Hash) error { return nil }
func (noopLog) Flush() error                          { return nil }

var _ Log = noopLog{}
