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

// Package engine drives a compiled manifest to completion: clean-step
// computation against the fingerprint memo and invocation log, a
// single-threaded scheduling loop dispatching through a runner.Runner,
// restat-style can-skip re-checks, and stale-output cleanup (spec §4.G).
package engine

import (
	"time"

	"github.com/maruel/shuriken/internal/buildgraph"
	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
	"github.com/maruel/shuriken/internal/involog"
	"github.com/maruel/shuriken/internal/runner"
	"github.com/maruel/shuriken/internal/status"
)

// Config holds the ambient knobs a CLI invocation feeds the engine,
// generalizing the teacher's BuildConfig.
type Config struct {
	Parallelism int
	MaxLoadAvg  float64
	// KeepGoing is the number of step failures tolerated before the main
	// loop stops dispatching new work (ninja's "-k N"; 1 means stop at
	// the first failure).
	KeepGoing int
	DryRun    bool
}

// Outcome is the main loop's terminal result.
type Outcome int

const (
	Success Outcome = iota
	Failed
	Interrupted
)

// Engine owns everything the scheduling loop needs: the compiled
// manifest, the filesystem and fingerprint layers, the invocation log,
// the command runner and the status reporter.
type Engine struct {
	Manifest     *buildgraph.CompiledManifest
	FS           fsx.FileSystem
	Fingerprints *fingerprint.Engine
	Invocations  *involog.Invocations
	Log          involog.Log
	Runner       runner.Runner
	Status       status.Status
	Config       Config

	// memo is the fingerprint-match memo, keyed by canonical path rather
	// than the spec's sparse fingerprint-id vector: the compiled
	// manifest already treats canonical paths as the graph's identity
	// (buildgraph's output/input indices are path-keyed too), so a path
	// key carries the same information without a separate id table.
	memo map[string]fingerprint.MatchesResult
	// writtenFiles maps a path this build has produced to the hash it
	// was given, standing in for the spec's FileId-keyed map: within one
	// build canonical path and on-disk identity coincide for every file
	// Shuriken itself writes, since it never hardlinks multiple outputs
	// onto one inode.
	writtenFiles map[string]fshash.Hash
	outputFiles  map[string]buildgraph.StepIndex
}

// New binds an Engine to a compiled manifest and its supporting layers.
func New(cm *buildgraph.CompiledManifest, fs fsx.FileSystem, fp *fingerprint.Engine, inv *involog.Invocations, log involog.Log, run runner.Runner, st status.Status, cfg Config) *Engine {
	if cfg.KeepGoing <= 0 {
		cfg.KeepGoing = 1
	}
	return &Engine{
		Manifest:     cm,
		FS:           fs,
		Fingerprints: fp,
		Invocations:  inv,
		Log:          log,
		Runner:       run,
		Status:       st,
		Config:       cfg,
		memo:         map[string]fingerprint.MatchesResult{},
		writtenFiles: map[string]fshash.Hash{},
		outputFiles:  map[string]buildgraph.StepIndex{},
	}
}

// node is the per-step scheduling state, spec §4.G's StepNode.
type node struct {
	dependents        []buildgraph.StepIndex
	unbuiltDepCount   int
	shouldBuild       bool
	noDirectDepsBuilt bool
	done              bool
}

// Build is the engine-wide scheduling state for one invocation.
type Build struct {
	nodes             []node
	ready             []buildgraph.StepIndex
	remainingFailures int
	invokedCommands   int
}

// Plan walks backwards from targets (or, if targets is empty, the
// manifest's defaults, or if there are none of those either, its root
// steps) marking the transitive closure should_build, and seeds the
// ready queue with every should_build step that has no unbuilt
// dependency (spec §4.G "Construction").
func (e *Engine) Plan(targets []buildgraph.StepIndex) *Build {
	n := len(e.Manifest.Steps)
	b := &Build{
		nodes:             make([]node, n),
		remainingFailures: e.Config.KeepGoing,
	}
	if len(targets) == 0 {
		targets = e.Manifest.Defaults
	}
	if len(targets) == 0 {
		targets = e.Manifest.Roots
	}

	var mark func(i buildgraph.StepIndex)
	mark = func(i buildgraph.StepIndex) {
		if b.nodes[i].shouldBuild {
			return
		}
		b.nodes[i].shouldBuild = true
		for _, dep := range e.Manifest.Steps[i].Dependencies {
			mark(dep)
		}
	}
	for _, t := range targets {
		mark(t)
	}

	for i := range e.Manifest.Steps {
		for _, dep := range e.Manifest.Steps[i].Dependencies {
			if b.nodes[i].shouldBuild && b.nodes[dep].shouldBuild {
				b.nodes[dep].dependents = append(b.nodes[dep].dependents, buildgraph.StepIndex(i))
			}
		}
	}
	for i := range e.Manifest.Steps {
		if !b.nodes[i].shouldBuild {
			continue
		}
		count := 0
		for _, dep := range e.Manifest.Steps[i].Dependencies {
			if b.nodes[dep].shouldBuild {
				count++
			}
		}
		b.nodes[i].unbuiltDepCount = count
		b.nodes[i].noDirectDepsBuilt = true
		if count == 0 {
			b.ready = append(b.ready, buildgraph.StepIndex(i))
		}
	}
	return b
}

// TotalShouldBuild counts the steps Plan marked for consideration, for
// the status reporter's total.
func (b *Build) TotalShouldBuild() int {
	n := 0
	for _, nd := range b.nodes {
		if nd.shouldBuild {
			n++
		}
	}
	return n
}

// PrecomputeMemo matches every fingerprint referenced by a should_build
// step's existing invocation-log entry exactly once, memoizing the
// result (spec §4.G "Fingerprint precomputation").
func (e *Engine) PrecomputeMemo(b *Build) error {
	for i, nd := range b.nodes {
		if !nd.shouldBuild {
			continue
		}
		step := &e.Manifest.Steps[i]
		entry, ok := e.Invocations.Entries[step.Hash]
		if !ok {
			continue
		}
		for _, idx := range append(append([]int{}, entry.OutputFiles...), entry.InputFiles...) {
			if idx < 0 || idx >= len(e.Invocations.Fingerprints) {
				continue
			}
			rec := e.Invocations.Fingerprints[idx]
			if _, done := e.memo[rec.Path]; done {
				continue
			}
			res, err := e.Fingerprints.Match(rec.Path, rec.Fingerprint)
			if err != nil {
				// Per spec §7, a fingerprinting error is treated as dirty,
				// not fatal.
				e.memo[rec.Path] = fingerprint.MatchesResult{Clean: false}
				continue
			}
			e.memo[rec.Path] = res
		}
	}
	return nil
}

// generatorClean implements the generator-step fallback: its outputs
// aren't hashed or FileId-tracked, so cleanliness is an mtime comparison
// (spec §4.G).
func (e *Engine) generatorClean(step *buildgraph.Step) bool {
	var newest time.Time
	for _, in := range step.Inputs {
		info, err := e.FS.Lstat(in)
		if err != nil || info.Kind == fsx.Missing {
			return false
		}
		if info.MTime.After(newest) {
			newest = info.MTime
		}
	}
	for _, out := range step.Outputs {
		info, err := e.FS.Lstat(out)
		if err != nil || info.Kind == fsx.Missing {
			return false
		}
		if info.MTime.Before(newest) {
			return false
		}
	}
	return true
}

// canSkip is the unified clean/restat gate: a ready step is skippable
// iff its invocation-log entry is clean according to the precomputed
// memo, and no file it references has been rewritten this build with a
// different hash than the entry recorded (spec §4.G "Restat / can-skip
// check"). Because a step only ever becomes ready once every dependency
// is done, running this same check the moment a step is popped also
// implements the separate "discard clean steps" pre-pass the spec
// describes: nothing distinguishes the two situations structurally.
func (e *Engine) canSkip(step *buildgraph.Step) bool {
	if step.Phony() {
		return true
	}
	if step.Generator {
		return e.generatorClean(step)
	}
	entry, ok := e.Invocations.Entries[step.Hash]
	if !ok {
		return false
	}
	recorded := map[string]fshash.Hash{}
	checkClean := func(idx int) bool {
		if idx < 0 || idx >= len(e.Invocations.Fingerprints) {
			return false
		}
		rec := e.Invocations.Fingerprints[idx]
		recorded[rec.Path] = rec.Fingerprint.Hash
		res, ok := e.memo[rec.Path]
		return ok && res.Clean
	}
	for _, idx := range entry.OutputFiles {
		if !checkClean(idx) {
			return false
		}
	}
	for _, idx := range entry.InputFiles {
		if !checkClean(idx) {
			return false
		}
	}
	for path, hash := range e.writtenFiles {
		if want, ok := recorded[path]; ok && want != hash {
			return false
		}
	}
	return true
}
