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
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func stepHash(name string) fshash.Hash {
	return fshash.FromBytes([]byte(name))
}

// frozenClock lets tests step the race-safety clock forward explicitly
// rather than racing the wall clock.
type frozenClock struct{ t time.Time }

func (f *frozenClock) now() time.Time { return f.t }

func TestAppendAndParseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")

	writeFile(t, filepath.Join(dir, "a.out"), "a-content")
	writeFile(t, filepath.Join(dir, "a.in"), "a-input")

	fs := fsx.NewReal()
	clock := &frozenClock{t: time.Now().Add(time.Hour)}
	engine := &fingerprint.Engine{FS: fs, Clock: clock.now}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeHeader(f); err != nil {
		t.Fatal(err)
	}

	parsed, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	app := NewAppender(f, parsed, engine, clock.now)

	step := stepHash("build a.out")
	outPath := filepath.Join(dir, "a.out")
	inPath := filepath.Join(dir, "a.in")
	if err := app.RanCommand(step, []string{outPath}, []string{inPath}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	rf, err := os.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	reparsed, err := Parse(rf, info.Size())
	if err != nil {
		t.Fatal(err)
	}
	if reparsed.Truncated {
		t.Fatal("unexpected truncation on a well-formed log")
	}
	entry, ok := reparsed.Invocations.Entries[step]
	if !ok {
		t.Fatal("invocation entry missing after reparse")
	}
	if len(entry.OutputFiles) != 1 || len(entry.InputFiles) != 1 {
		t.Fatalf("entry = %+v, want one output and one input", entry)
	}
	gotOut := reparsed.Invocations.Fingerprints[entry.OutputFiles[0]]
	if gotOut.Path != outPath {
		t.Errorf("output path = %q, want %q", gotOut.Path, outPath)
	}
	gotIn := reparsed.Invocations.Fingerprints[entry.InputFiles[0]]
	if gotIn.Path != inPath {
		t.Errorf("input path = %q, want %q", gotIn.Path, inPath)
	}
}

func TestCleanedCommandTombstones(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	writeFile(t, filepath.Join(dir, "out"), "x")

	fs := fsx.NewReal()
	clock := &frozenClock{t: time.Now().Add(time.Hour)}
	engine := &fingerprint.Engine{FS: fs, Clock: clock.now}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeHeader(f); err != nil {
		t.Fatal(err)
	}
	parsed, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	app := NewAppender(f, parsed, engine, clock.now)

	step := stepHash("step")
	outPath := filepath.Join(dir, "out")
	if err := app.RanCommand(step, []string{outPath}, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := app.CleanedCommand(step); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	parsed2, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed2.Invocations.Entries[step]; ok {
		t.Fatal("tombstoned entry should not survive reparse")
	}
}

func TestTruncatedTailRecovers(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	writeFile(t, filepath.Join(dir, "out"), "x")

	fs := fsx.NewReal()
	clock := &frozenClock{t: time.Now().Add(time.Hour)}
	engine := &fingerprint.Engine{FS: fs, Clock: clock.now}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeHeader(f); err != nil {
		t.Fatal(err)
	}
	parsed, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	app := NewAppender(f, parsed, engine, clock.now)
	step := stepHash("step")
	if err := app.RanCommand(step, []string{filepath.Join(dir, "out")}, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	// Append a few garbage bytes to simulate a crash mid-write.
	f2, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f2.Write([]byte{0xff, 0xff, 0xff}); err != nil {
		t.Fatal(err)
	}
	if err := f2.Close(); err != nil {
		t.Fatal(err)
	}

	parsed2, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !parsed2.Truncated {
		t.Fatal("expected Truncated after corrupt tail")
	}
	if _, ok := parsed2.Invocations.Entries[step]; !ok {
		t.Fatal("the well-formed entry before the corrupt tail should survive")
	}
}

func TestCompactPreservesLiveEntries(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	outPath := filepath.Join(dir, "out")
	writeFile(t, outPath, "x")

	fs := fsx.NewReal()
	clock := &frozenClock{t: time.Now().Add(time.Hour)}
	engine := &fingerprint.Engine{FS: fs, Clock: clock.now}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeHeader(f); err != nil {
		t.Fatal(err)
	}
	parsed, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	app := NewAppender(f, parsed, engine, clock.now)

	live := stepHash("live")
	dead := stepHash("dead")
	if err := app.RanCommand(live, []string{outPath}, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := app.RanCommand(dead, []string{outPath}, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := app.CleanedCommand(dead); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	before, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := Compact(logPath, before.Invocations, before.CreatedDirectoryPaths); err != nil {
		t.Fatal(err)
	}

	after, _, err := Load(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before.Invocations.Entries[live], after.Invocations.Entries[live]); diff != "" {
		t.Errorf("live entry changed after compaction (-before +after):\n%s", diff)
	}
	if _, ok := after.Invocations.Entries[dead]; ok {
		t.Error("tombstoned entry resurrected by compaction")
	}
	if len(after.Invocations.Entries) != 1 {
		t.Errorf("len(Entries) = %d, want 1", len(after.Invocations.Entries))
	}
}

func TestDelayedAppenderHoldsAcrossRaceBoundary(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out")
	writeFile(t, outPath, "x")

	fs := fsx.NewReal()
	var recorded []fshash.Hash
	rec := recordingLog{onRan: func(step fshash.Hash) { recorded = append(recorded, step) }}

	now := time.Now()
	clock := &frozenClock{t: now}
	d := NewDelayedAppender(&rec, fs, clock.now)

	step := stepHash("step")
	if err := d.RanCommand(step, []string{outPath}, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 0 {
		t.Fatal("RanCommand should not flush before the output's second elapses")
	}

	clock.t = now.Add(2 * time.Second)
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0] != step {
		t.Fatalf("recorded = %v, want [%v]", recorded, step)
	}
}

type recordingLog struct {
	onRan func(fshash.Hash)
}

func (recordingLog) CreatedDirectory(string) error { return nil }
func (recordingLog) RemovedDirectory(string) error { return nil }
func (r *recordingLog) RanCommand(step fshash.Hash, outputs, inputs []string, ignored []uint32, additional []fshash.Hash) error {
	r.onRan(step)
	return nil
}
func (recordingLog) CleanedCommand(fshash.Hash) error { return nil }
func (recordingLog) Flush() error                     { return nil }
