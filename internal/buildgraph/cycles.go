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

import "fmt"

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	done
)

// detectCycles walks the dependency graph depth-first looking for a step
// that depends, transitively, on itself (spec §4.E step 5).
func detectCycles(steps []Step) error {
	state := make([]visitState, len(steps))
	name := func(i StepIndex) string { return stepName(steps, i) }

	var stack []StepIndex
	var visit func(i StepIndex) error
	visit = func(i StepIndex) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			// Find where i first appeared on the stack to report the
			// minimal cycle instead of the whole walk.
			start := 0
			for j, s := range stack {
				if s == i {
					start = j
					break
				}
			}
			cycle := append([]StepIndex{}, stack[start:]...)
			return fmt.Errorf("buildgraph: dependency cycle: %s", formatCycle(cycle, name))
		}
		state[i] = visiting
		stack = append(stack, i)
		for _, dep := range steps[i].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return nil
	}

	for i := range steps {
		if state[i] == unvisited {
			if err := visit(StepIndex(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func stepName(steps []Step, i StepIndex) string {
	s := steps[i]
	if len(s.Outputs) > 0 {
		return s.Outputs[0]
	}
	return "step#" + itoa(int(i))
}

// checkGeneratorCrossing verifies that a generator step never depends
// directly on a normal step and vice versa (spec §4.E step 6): the two
// step classes may only be bridged by a phony step, whose own
// dependencies are unconstrained.
func checkGeneratorCrossing(steps []Step) error {
	for _, s := range steps {
		if s.Phony() {
			continue
		}
		for _, dep := range s.Dependencies {
			d := steps[dep]
			if d.Phony() {
				continue
			}
			if s.Generator && !d.Generator {
				return fmt.Errorf("buildgraph: generator step producing %v depends directly on normal step %v; bridge through a phony step", s.Outputs, d.Outputs)
			}
			if !s.Generator && d.Generator {
				return fmt.Errorf("buildgraph: normal step producing %v depends directly on generator step %v; bridge through a phony step", s.Outputs, d.Outputs)
			}
		}
	}
	return nil
}
