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
	"strings"
	"time"

	"github.com/maruel/shuriken/internal/buildgraph"
	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
	"github.com/maruel/shuriken/internal/runner"
)

func nowMillis(start time.Time) int64 { return time.Since(start).Milliseconds() }

// Run executes the scheduling loop described in spec §4.G's "Main
// loop": dispatch every ready, non-skippable step through e.Runner,
// block in RunCommands for completions, mark dependents ready as their
// unbuilt_dep_count reaches zero, and stop dispatching new work once
// KeepGoing failures have accumulated.
func (e *Engine) Run(b *Build) (Outcome, error) {
	start := time.Now()
	e.Status.BuildStarted()
	defer e.Status.BuildFinished()
	e.Status.PlanHasTotalSteps(b.TotalShouldBuild())

	outcome := Success
	for len(b.ready) > 0 || b.invokedCommands > 0 {
		for b.remainingFailures > 0 && len(b.ready) > 0 && e.Runner.CanRunMore() {
			i := b.ready[0]
			b.ready = b.ready[1:]
			step := &e.Manifest.Steps[i]

			if step.Phony() {
				e.markDone(b, i, false)
				continue
			}
			if e.canSkip(step) {
				e.markDone(b, i, false)
				continue
			}
			if err := e.prepareStep(step); err != nil {
				e.Status.Error("preparing %v: %v", step.Outputs, err)
				b.remainingFailures--
				e.markFailed(b, i)
				continue
			}
			e.dispatch(b, i, start)
		}

		if b.invokedCommands == 0 {
			break
		}
		if interrupted := e.Runner.RunCommands(); interrupted {
			outcome = Interrupted
			break
		}
	}
	if outcome == Success && b.remainingFailures < e.Config.KeepGoing {
		outcome = Failed
	}
	return outcome, nil
}

// prepareStep ensures output directories exist and removes outputs the
// previous invocation of this same step produced that it is no longer
// about to recreate (spec §4.G, main-loop step 1).
func (e *Engine) prepareStep(step *buildgraph.Step) error {
	for _, dir := range step.OutputDirs {
		if err := e.ensureDir(dir); err != nil {
			return err
		}
	}
	if entry, ok := e.Invocations.Entries[step.Hash]; ok {
		current := map[string]struct{}{}
		for _, o := range step.Outputs {
			current[o] = struct{}{}
		}
		for _, idx := range entry.OutputFiles {
			if idx < 0 || idx >= len(e.Invocations.Fingerprints) {
				continue
			}
			path := e.Invocations.Fingerprints[idx].Path
			if _, keep := current[path]; keep {
				continue
			}
			info, err := e.FS.Lstat(path)
			if err == nil && info.Kind != fsx.Missing {
				e.FS.Unlink(path)
			}
		}
	}
	return nil
}

// ensureDir walks path's parents in order, creating each missing level
// and logging the ones it actually created.
func (e *Engine) ensureDir(path string) error {
	if path == "" || path == "." || path == "/" {
		return nil
	}
	info, err := e.FS.Lstat(path)
	if err == nil && info.Kind == fsx.Directory {
		return nil
	}
	parent := path[:strings.LastIndex(path, "/")+1]
	if len(parent) > 0 {
		parent = strings.TrimSuffix(parent, "/")
		if parent != "" {
			if err := e.ensureDir(parent); err != nil {
				return err
			}
		}
	}
	if err := e.FS.Mkdir(path); err != nil {
		return err
	}
	return e.Log.CreatedDirectory(path)
}

// dispatch hands step's command to the runner, recording its completion
// in the invocation log once the runner's callback fires.
func (e *Engine) dispatch(b *Build, i buildgraph.StepIndex, start time.Time) {
	step := &e.Manifest.Steps[i]
	b.invokedCommands++
	startMillis := nowMillis(start)
	e.Status.StepStarted(step, startMillis)

	e.Runner.Invoke(step.Command, step.PoolName, func(r *runner.Result) {
		b.invokedCommands--
		endMillis := nowMillis(start)
		e.Status.StepFinished(step, endMillis, r.Success(), r.Output)

		if !r.Success() {
			b.remainingFailures--
			e.markFailed(b, i)
			return
		}
		e.recordSuccess(step, r)
		e.markDone(b, i, true)
	})
}

// recordSuccess computes what the step actually read versus declared,
// fingerprints its outputs, and appends the invocation-log entry (spec
// §4.G main-loop step 2, "On success").
func (e *Engine) recordSuccess(step *buildgraph.Step, r *runner.Result) {
	declared := map[string]struct{}{}
	for _, in := range step.Inputs {
		declared[in] = struct{}{}
	}
	actual := map[string]struct{}{}
	for path, dep := range r.InputFiles {
		if dep == runner.IgnoreIfDirectory {
			if info, err := e.FS.Lstat(path); err != nil || info.Kind == fsx.Directory {
				continue
			}
		}
		actual[path] = struct{}{}
	}

	var ignored []uint32
	for idx, in := range step.Inputs {
		if _, read := actual[in]; !read {
			ignored = append(ignored, uint32(idx))
		}
	}
	var additional []fshash.Hash
	for path := range actual {
		if _, wasDeclared := declared[path]; wasDeclared {
			continue
		}
		if producer, ok := e.outputFiles[path]; ok {
			additional = append(additional, e.Manifest.Steps[producer].Hash)
		}
	}

	now := time.Now()
	outputs := append([]string{}, step.Outputs...)
	sort.Strings(outputs)
	producer := e.Manifest.OutputIndex[step.Outputs[0]]
	for _, out := range outputs {
		fp, err := e.Fingerprints.Take(now, out)
		if err != nil {
			continue
		}
		e.memo[out] = fingerprint.MatchesResult{Clean: true}
		e.writtenFiles[out] = fp.Hash
		e.outputFiles[out] = producer
	}

	if !step.Generator {
		e.Log.RanCommand(step.Hash, step.Outputs, step.Inputs, ignored, additional)
	}
}

// markDone propagates a finished step (whether it actually ran or was
// skipped as clean) to its dependents, pushing any that become ready.
func (e *Engine) markDone(b *Build, i buildgraph.StepIndex, ran bool) {
	b.nodes[i].done = true
	for _, dep := range b.nodes[i].dependents {
		if ran {
			b.nodes[dep].noDirectDepsBuilt = false
		}
		b.nodes[dep].unbuiltDepCount--
		if b.nodes[dep].unbuiltDepCount == 0 && b.nodes[dep].shouldBuild && !b.nodes[dep].done {
			b.ready = append(b.ready, dep)
		}
	}
}

// markFailed is the failure counterpart of markDone: a failed step is
// simply left out of the graph from here on, unlike markDone, it never
// propagates to dependents (spec §4.G: "do not mark the step done; do
// not propagate to dependents").
func (e *Engine) markFailed(b *Build, i buildgraph.StepIndex) {}
