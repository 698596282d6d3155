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

package manifest

// RawPool is a parsed "pool" statement: a named cap on concurrent running
// steps (spec §1, §4.F "pool-based admission control").
type RawPool struct {
	Name  string
	Depth int
}

// RawStep is a parsed "build" statement: the uninterpreted record the
// lexer and parser produce, with its paths already canonicalized, before
// internal/buildgraph resolves it into the step graph (spec §1's "RawStep").
type RawStep struct {
	Outputs         []string
	ImplicitOutputs int
	Inputs          []string
	ImplicitInputs  int
	OrderOnlyInputs int
	Validations     []string

	RuleName    string
	Command     string
	Description string
	Pool        string
	Depfile     string
	Deps        string
	Generator   bool
	Restat      bool
	Rspfile     string
	RspfileContent string
	Dyndep      string
}

// RawManifest is the whole of a parsed manifest: every build statement
// seen across the root file and any include/subninja it pulled in, plus
// the pools declared and the default target list. Rule and variable
// scoping has already been resolved into each RawStep's concrete fields
// and every path canonicalized; only graph construction remains, done by
// internal/buildgraph.
type RawManifest struct {
	Steps   []RawStep
	Pools   map[string]RawPool
	Defaults []string

	// Files lists every file consulted while parsing, root manifest
	// first, in the order each was opened: used to freshness-check a
	// compiled-manifest sidecar cache against every input that
	// contributed to it.
	Files []string
}
