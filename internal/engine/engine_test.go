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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maruel/shuriken/internal/buildgraph"
	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fsx"
	"github.com/maruel/shuriken/internal/involog"
	"github.com/maruel/shuriken/internal/manifest"
	"github.com/maruel/shuriken/internal/runner"
	"github.com/maruel/shuriken/internal/status"
)

// setup builds a one-step manifest running "cp in.txt out.txt" inside a
// fresh temp directory and wires an Engine over it.
func setup(t *testing.T) (*Engine, *buildgraph.CompiledManifest, *involog.Opened, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	manifestPath := filepath.Join(dir, "build.ninja")
	src := fmt.Sprintf("rule cp\n  command = cp %s %s\nbuild %s: cp %s\n", in, out, out, in)

	raw, err := manifest.ParseManifest(manifest.OSFileReader{}, manifest.ParseOptions{}, manifestPath, []byte(src))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	cm, err := buildgraph.Compile(raw, manifestPath)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	fs := fsx.NewReal()
	fp := fingerprint.NewEngine(fs)
	logPath := filepath.Join(dir, ".shk_log")
	opened, err := involog.Open(logPath, fs, fp, time.Now, false)
	if err != nil {
		t.Fatalf("involog.Open: %v", err)
	}

	run := runner.NewSubprocess()
	st := status.NewPrinter(status.Quiet, 1)
	e := New(cm, fs, fp, opened.Parsed.Invocations, opened.Log, run, st, Config{Parallelism: 1, KeepGoing: 1})
	return e, cm, opened, dir
}

func TestRunBuildsDirtyStep(t *testing.T) {
	e, _, opened, dir := setup(t)
	defer opened.Close()

	if err := os.WriteFile(filepath.Join(dir, "in.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := e.CleanStaleOutputs(); err != nil {
		t.Fatalf("CleanStaleOutputs: %v", err)
	}
	b := e.Plan(nil)
	if err := e.PrecomputeMemo(b); err != nil {
		t.Fatalf("PrecomputeMemo: %v", err)
	}
	outcome, err := e.Run(b)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != Success {
		t.Fatalf("outcome = %v, want Success", outcome)
	}
	if err := opened.Log.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("out.txt = %q, want %q", got, "hello")
	}
}

// TestRerunWithLoadedLogStaysClean builds once, reopens the invocation
// log fresh (as a second orchestrator invocation would) and builds
// again without touching anything: the second run must still succeed
// and leave the output untouched.
func TestRerunWithLoadedLogStaysClean(t *testing.T) {
	e, cm, opened, dir := setup(t)
	if err := os.WriteFile(filepath.Join(dir, "in.txt"), []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.CleanStaleOutputs(); err != nil {
		t.Fatalf("CleanStaleOutputs: %v", err)
	}
	b := e.Plan(nil)
	if err := e.PrecomputeMemo(b); err != nil {
		t.Fatalf("PrecomputeMemo: %v", err)
	}
	if _, err := e.Run(b); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := opened.Log.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := opened.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fs := fsx.NewReal()
	fp := fingerprint.NewEngine(fs)
	reopened, err := involog.Open(filepath.Join(dir, ".shk_log"), fs, fp, time.Now, false)
	if err != nil {
		t.Fatalf("reopen involog.Open: %v", err)
	}
	defer reopened.Close()

	st := status.NewPrinter(status.Quiet, 1)
	e2 := New(cm, fs, fp, reopened.Parsed.Invocations, reopened.Log, runner.NewSubprocess(), st, Config{Parallelism: 1, KeepGoing: 1})
	if err := e2.CleanStaleOutputs(); err != nil {
		t.Fatalf("second CleanStaleOutputs: %v", err)
	}
	b2 := e2.Plan(nil)
	if err := e2.PrecomputeMemo(b2); err != nil {
		t.Fatalf("second PrecomputeMemo: %v", err)
	}
	outcome, err := e2.Run(b2)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if outcome != Success {
		t.Fatalf("second outcome = %v, want Success", outcome)
	}

	got, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("out.txt = %q, want %q", got, "first")
	}
}
