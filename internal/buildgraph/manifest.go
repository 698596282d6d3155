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

package buildgraph

import (
	"fmt"
	"sort"

	"github.com/maruel/shuriken/internal/manifest"
)

// CompiledManifest is the validated, cycle-checked build graph compiled
// from a manifest.RawManifest (spec §3 "CompiledManifest").
type CompiledManifest struct {
	Steps []Step

	// OutputIndex maps a canonical output path to the step that produces
	// it.
	OutputIndex map[string]StepIndex
	// InputIndex maps a canonical path to every step that declares it as
	// an input, for reverse lookups.
	InputIndex map[string][]StepIndex

	Pools map[string]int // name -> depth; depth 0 means unlimited.

	Defaults []StepIndex
	Roots    []StepIndex

	// RegenerationStep is the index of the step that outputs the
	// top-level manifest file, or -1 if none.
	RegenerationStep StepIndex

	// ManifestFiles lists every file consulted while parsing (the root
	// manifest plus every include/subninja), for the sidecar's mtime
	// freshness check.
	ManifestFiles []string
}

// Compile builds a CompiledManifest from raw, per spec §4.E's eight-step
// algorithm. manifestPath is the root manifest's canonical path, used to
// identify a regeneration step.
func Compile(raw *manifest.RawManifest, manifestPath string) (*CompiledManifest, error) {
	cm := &CompiledManifest{
		OutputIndex:      map[string]StepIndex{},
		InputIndex:       map[string][]StepIndex{},
		Pools:            map[string]int{"console": 1},
		RegenerationStep: -1,
		ManifestFiles:    raw.Files,
	}
	for name, p := range raw.Pools {
		if p.Depth < 0 {
			return nil, fmt.Errorf("buildgraph: pool %q has negative depth", name)
		}
		cm.Pools[name] = p.Depth
	}

	cm.Steps = make([]Step, len(raw.Steps))
	for i, rs := range raw.Steps {
		cm.Steps[i] = compileStep(rs)
	}

	// 1. Output-path -> step-index map, rejecting duplicate outputs.
	for i, s := range cm.Steps {
		for _, o := range s.Outputs {
			if prev, dup := cm.OutputIndex[o]; dup {
				return nil, fmt.Errorf("buildgraph: multiple rules generate %q (steps %d and %d)", o, prev, i)
			}
			cm.OutputIndex[o] = StepIndex(i)
		}
	}

	// 2. Paths are already canonicalized by the manifest parser; nothing
	// further to drop here since every RawStep path went through
	// manifest.CanonicalizePath on the way in.

	// 3. Resolve dependencies: every input produced by another step.
	for i := range cm.Steps {
		s := &cm.Steps[i]
		seen := map[StepIndex]bool{}
		for _, in := range s.Inputs {
			if producer, ok := cm.OutputIndex[in]; ok && producer != StepIndex(i) && !seen[producer] {
				seen[producer] = true
				s.Dependencies = append(s.Dependencies, producer)
			}
			cm.InputIndex[in] = append(cm.InputIndex[in], StepIndex(i))
		}
		sort.Slice(s.Dependencies, func(a, b int) bool { return s.Dependencies[a] < s.Dependencies[b] })
	}

	// 4. Mark roots: steps that are nobody's dependency.
	isDependency := make([]bool, len(cm.Steps))
	for i := range cm.Steps {
		for _, dep := range cm.Steps[i].Dependencies {
			isDependency[dep] = true
		}
	}
	for i := range cm.Steps {
		if !isDependency[i] {
			cm.Roots = append(cm.Roots, StepIndex(i))
		}
	}

	// 5. Cycle detection.
	if err := detectCycles(cm.Steps); err != nil {
		return nil, err
	}

	// 6. Generator/normal cross-dependency check.
	if err := checkGeneratorCrossing(cm.Steps); err != nil {
		return nil, err
	}

	// 7. Resolve the manifest-regeneration step.
	if idx, ok := cm.OutputIndex[manifestPath]; ok {
		cm.RegenerationStep = idx
	}

	// 8. Defaults.
	for _, d := range raw.Defaults {
		if idx, ok := cm.OutputIndex[d]; ok {
			cm.Defaults = append(cm.Defaults, idx)
		} else {
			return nil, fmt.Errorf("buildgraph: unknown default target %q", d)
		}
	}

	// Additional invariants from spec §3.
	for i, s := range cm.Steps {
		if s.Depfile != "" && s.Generator {
			return nil, fmt.Errorf("buildgraph: step producing %v has both a depfile and the generator flag", s.Outputs)
		}
		if s.PoolName != "" {
			if _, ok := cm.Pools[s.PoolName]; !ok {
				return nil, fmt.Errorf("buildgraph: step producing %v references unknown pool %q", s.Outputs, s.PoolName)
			}
		}
		if s.Phony() && len(s.Outputs) > 0 {
			// Phony steps may still declare outputs (they group other
			// steps under a symbolic name); nothing to validate further
			// here beyond what's already checked above.
			_ = i
		}
	}

	return cm, nil
}
