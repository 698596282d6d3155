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

// Package buildgraph compiles a manifest.RawManifest into a
// CompiledManifest: canonicalized, validated, cycle-checked, with
// output→step and input→step indices and a stable per-step hash (spec
// §4.E).
package buildgraph

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/manifest"
)

// StepIndex identifies a Step within a CompiledManifest's Steps slice.
type StepIndex int

// Step is the compiled, immutable record built from a manifest.RawStep.
type Step struct {
	Hash        fshash.Hash
	RuleName    string
	Command     string
	Description string
	PoolName    string
	Depfile     string
	Deps        string
	Generator   bool
	Restat      bool

	Outputs         []string
	ImplicitOutputs int
	Inputs          []string
	ImplicitInputs  int
	OrderOnlyInputs int
	Validations     []string

	// Dependencies is the sorted, deduplicated list of steps that produce
	// one of this step's input paths.
	Dependencies []StepIndex
	// OutputDirs is the distinct set of parent directories of Outputs.
	OutputDirs []string
}

// Phony reports whether step is a group-only step with no command of its
// own (spec §3: "a step whose command is empty ... exists only to group
// other steps").
func (s *Step) Phony() bool { return s.Command == "" }

// UsesConsole reports whether step runs against the special "console"
// pool (spec §4.F: "pool console has depth 1"), letting it write
// directly to the terminal instead of through the status line.
func (s *Step) UsesConsole() bool { return s.PoolName == "console" }

// ExplicitInputs returns the inputs that are neither implicit nor
// order-only.
func (s *Step) ExplicitInputs() []string {
	return s.Inputs[:len(s.Inputs)-s.ImplicitInputs-s.OrderOnlyInputs]
}

// ExplicitOutputs returns the outputs that are not implicit.
func (s *Step) ExplicitOutputs() []string {
	return s.Outputs[:len(s.Outputs)-s.ImplicitOutputs]
}

// stepHash computes the step-identity hash from the fields the spec names:
// command, outputs, generator flag, restat flag (§3 "Step (compiled)").
// It must stay stable across runs given identical inputs, so it only ever
// appends fixed-width or NUL-terminated fields in a fixed order.
func stepHash(command string, outputs []string, generator, restat bool) fshash.Hash {
	var buf []byte
	buf = append(buf, command...)
	buf = append(buf, 0)
	for _, o := range outputs {
		buf = append(buf, o...)
		buf = append(buf, 0)
	}
	if generator {
		buf = append(buf, 'G')
	}
	if restat {
		buf = append(buf, 'R')
	}
	return fshash.FromBytes(buf)
}

func outputDirsOf(outputs []string) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, o := range outputs {
		dir := filepath.Dir(o)
		if dir == "." || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func compileStep(raw manifest.RawStep) Step {
	return Step{
		Hash:            stepHash(raw.Command, raw.Outputs, raw.Generator, raw.Restat),
		RuleName:        raw.RuleName,
		Command:         raw.Command,
		Description:     raw.Description,
		PoolName:        raw.Pool,
		Depfile:         raw.Depfile,
		Deps:            raw.Deps,
		Generator:       raw.Generator,
		Restat:          raw.Restat,
		Outputs:         raw.Outputs,
		ImplicitOutputs: raw.ImplicitOutputs,
		Inputs:          raw.Inputs,
		ImplicitInputs:  raw.ImplicitInputs,
		OrderOnlyInputs: raw.OrderOnlyInputs,
		Validations:     raw.Validations,
		OutputDirs:      outputDirsOf(raw.Outputs),
	}
}

// pathIndexEntry is a sorted-array row binary-searched by canonical path
// (spec §3's "sorted arrays of (canonicalized_path, step_index)").
type pathIndexEntry struct {
	Path  string
	Steps []StepIndex
}

func formatCycle(path []StepIndex, names func(StepIndex) string) string {
	s := ""
	for i, idx := range path {
		if i > 0 {
			s += " → "
		}
		s += names(idx)
	}
	s += " → " + names(path[0])
	return s
}

func itoa(i int) string { return strconv.Itoa(i) }
