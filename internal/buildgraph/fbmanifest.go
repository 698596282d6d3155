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

// This file hand-encodes the compiled manifest sidecar with the
// flatbuffers wire format directly against the builder/table primitives,
// without a .fbs schema or flatc-generated accessors. Field slot numbers
// below are the wire contract between encodeManifest and decodeManifest;
// changing one without the other breaks the sidecar's forward
// compatibility, so they're kept together in this file.

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// Step table field slots.
const (
	stepHashField = iota
	stepRuleNameField
	stepCommandField
	stepDescriptionField
	stepPoolNameField
	stepDepfileField
	stepDepsField
	stepGeneratorField
	stepRestatField
	stepOutputsField
	stepImplicitOutputsField
	stepInputsField
	stepImplicitInputsField
	stepOrderOnlyInputsField
	stepValidationsField
	stepDependenciesField
	stepOutputDirsField
	stepFieldCount
)

// Pool table field slots.
const (
	poolNameField = iota
	poolDepthField
	poolFieldCount
)

// Manifest root table field slots.
const (
	manifestVersionField = iota
	manifestStepsField
	manifestPoolsField
	manifestDefaultsField
	manifestRootsField
	manifestRegenerationStepField
	manifestFilesField
	manifestFieldCount
)

// sidecarVersion is bumped whenever the wire layout above changes
// incompatibly; Load rejects a sidecar whose version doesn't match.
const sidecarVersion uint64 = 1

func buildStringVector(b *flatbuffers.Builder, values []string) flatbuffers.UOffsetT {
	offsets := make([]flatbuffers.UOffsetT, len(values))
	for i, v := range values {
		offsets[i] = b.CreateString(v)
	}
	b.StartVector(4, len(values), 4)
	for i := len(values) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	return b.EndVector(len(values))
}

func buildInt32Vector(b *flatbuffers.Builder, values []int) flatbuffers.UOffsetT {
	b.StartVector(4, len(values), 4)
	for i := len(values) - 1; i >= 0; i-- {
		b.PrependInt32(int32(values[i]))
	}
	return b.EndVector(len(values))
}

func buildStep(b *flatbuffers.Builder, s Step) flatbuffers.UOffsetT {
	hashOff := b.CreateByteVector(s.Hash[:])
	ruleNameOff := b.CreateString(s.RuleName)
	commandOff := b.CreateString(s.Command)
	descOff := b.CreateString(s.Description)
	poolOff := b.CreateString(s.PoolName)
	depfileOff := b.CreateString(s.Depfile)
	depsOff := b.CreateString(s.Deps)
	outputsOff := buildStringVector(b, s.Outputs)
	inputsOff := buildStringVector(b, s.Inputs)
	validationsOff := buildStringVector(b, s.Validations)
	outputDirsOff := buildStringVector(b, s.OutputDirs)
	deps := make([]int, len(s.Dependencies))
	for i, d := range s.Dependencies {
		deps[i] = int(d)
	}
	dependenciesOff := buildInt32Vector(b, deps)

	b.StartObject(stepFieldCount)
	b.PrependUOffsetTSlot(stepHashField, hashOff, 0)
	b.PrependUOffsetTSlot(stepRuleNameField, ruleNameOff, 0)
	b.PrependUOffsetTSlot(stepCommandField, commandOff, 0)
	b.PrependUOffsetTSlot(stepDescriptionField, descOff, 0)
	b.PrependUOffsetTSlot(stepPoolNameField, poolOff, 0)
	b.PrependUOffsetTSlot(stepDepfileField, depfileOff, 0)
	b.PrependUOffsetTSlot(stepDepsField, depsOff, 0)
	b.PrependBoolSlot(stepGeneratorField, s.Generator, false)
	b.PrependBoolSlot(stepRestatField, s.Restat, false)
	b.PrependUOffsetTSlot(stepOutputsField, outputsOff, 0)
	b.PrependInt32Slot(stepImplicitOutputsField, int32(s.ImplicitOutputs), 0)
	b.PrependUOffsetTSlot(stepInputsField, inputsOff, 0)
	b.PrependInt32Slot(stepImplicitInputsField, int32(s.ImplicitInputs), 0)
	b.PrependInt32Slot(stepOrderOnlyInputsField, int32(s.OrderOnlyInputs), 0)
	b.PrependUOffsetTSlot(stepValidationsField, validationsOff, 0)
	b.PrependUOffsetTSlot(stepDependenciesField, dependenciesOff, 0)
	b.PrependUOffsetTSlot(stepOutputDirsField, outputDirsOff, 0)
	return b.EndObject()
}

func buildPool(b *flatbuffers.Builder, name string, depth int) flatbuffers.UOffsetT {
	nameOff := b.CreateString(name)
	b.StartObject(poolFieldCount)
	b.PrependUOffsetTSlot(poolNameField, nameOff, 0)
	b.PrependInt32Slot(poolDepthField, int32(depth), 0)
	return b.EndObject()
}

// encodeManifest serializes cm to the flatbuffers wire format described by
// the slot constants above.
func encodeManifest(cm *CompiledManifest) []byte {
	b := flatbuffers.NewBuilder(4096)

	stepOffsets := make([]flatbuffers.UOffsetT, len(cm.Steps))
	for i := len(cm.Steps) - 1; i >= 0; i-- {
		stepOffsets[i] = buildStep(b, cm.Steps[i])
	}
	b.StartVector(4, len(stepOffsets), 4)
	for i := len(stepOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(stepOffsets[i])
	}
	stepsVec := b.EndVector(len(stepOffsets))

	poolNames := make([]string, 0, len(cm.Pools))
	for name := range cm.Pools {
		poolNames = append(poolNames, name)
	}
	sortStrings(poolNames)
	poolOffsets := make([]flatbuffers.UOffsetT, len(poolNames))
	for i := len(poolNames) - 1; i >= 0; i-- {
		poolOffsets[i] = buildPool(b, poolNames[i], cm.Pools[poolNames[i]])
	}
	b.StartVector(4, len(poolOffsets), 4)
	for i := len(poolOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(poolOffsets[i])
	}
	poolsVec := b.EndVector(len(poolOffsets))

	defaults := make([]int, len(cm.Defaults))
	for i, d := range cm.Defaults {
		defaults[i] = int(d)
	}
	defaultsVec := buildInt32Vector(b, defaults)

	roots := make([]int, len(cm.Roots))
	for i, r := range cm.Roots {
		roots[i] = int(r)
	}
	rootsVec := buildInt32Vector(b, roots)

	filesVec := buildStringVector(b, cm.ManifestFiles)

	b.StartObject(manifestFieldCount)
	b.PrependUint64Slot(manifestVersionField, sidecarVersion, 0)
	b.PrependUOffsetTSlot(manifestStepsField, stepsVec, 0)
	b.PrependUOffsetTSlot(manifestPoolsField, poolsVec, 0)
	b.PrependUOffsetTSlot(manifestDefaultsField, defaultsVec, 0)
	b.PrependUOffsetTSlot(manifestRootsField, rootsVec, 0)
	b.PrependInt32Slot(manifestRegenerationStepField, int32(cm.RegenerationStep), -1)
	b.PrependUOffsetTSlot(manifestFilesField, filesVec, 0)
	root := b.EndObject()

	b.Finish(root)
	return b.FinishedBytes()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func readStringVector(t *flatbuffers.Table, field flatbuffers.VOffsetT) []string {
	o := flatbuffers.UOffsetT(t.Offset(field))
	if o == 0 {
		return nil
	}
	off := t.Vector(o)
	n := t.VectorLen(o)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		pos := off + flatbuffers.UOffsetT(i*4)
		out[i] = t.String(pos)
	}
	return out
}

func readInt32Vector(t *flatbuffers.Table, field flatbuffers.VOffsetT) []int {
	o := flatbuffers.UOffsetT(t.Offset(field))
	if o == 0 {
		return nil
	}
	off := t.Vector(o)
	n := t.VectorLen(o)
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(t.GetInt32(off + flatbuffers.UOffsetT(i*4)))
	}
	return out
}

func decodeStep(t flatbuffers.Table) Step {
	var s Step
	if o := flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT((stepHashField + 2) * 2))); o != 0 {
		b := t.ByteVector(t.Pos + o)
		copy(s.Hash[:], b)
	}
	s.RuleName = readTableString(&t, (stepRuleNameField+2)*2)
	s.Command = readTableString(&t, (stepCommandField+2)*2)
	s.Description = readTableString(&t, (stepDescriptionField+2)*2)
	s.PoolName = readTableString(&t, (stepPoolNameField+2)*2)
	s.Depfile = readTableString(&t, (stepDepfileField+2)*2)
	s.Deps = readTableString(&t, (stepDepsField+2)*2)
	s.Generator = readTableBool(&t, (stepGeneratorField+2)*2)
	s.Restat = readTableBool(&t, (stepRestatField+2)*2)
	s.Outputs = readStringVector(&t, flatbuffers.VOffsetT((stepOutputsField+2)*2))
	s.ImplicitOutputs = readTableInt32(&t, (stepImplicitOutputsField+2)*2)
	s.Inputs = readStringVector(&t, flatbuffers.VOffsetT((stepInputsField+2)*2))
	s.ImplicitInputs = readTableInt32(&t, (stepImplicitInputsField+2)*2)
	s.OrderOnlyInputs = readTableInt32(&t, (stepOrderOnlyInputsField+2)*2)
	s.Validations = readStringVector(&t, flatbuffers.VOffsetT((stepValidationsField+2)*2))
	deps := readInt32Vector(&t, flatbuffers.VOffsetT((stepDependenciesField+2)*2))
	s.Dependencies = make([]StepIndex, len(deps))
	for i, d := range deps {
		s.Dependencies[i] = StepIndex(d)
	}
	s.OutputDirs = readStringVector(&t, flatbuffers.VOffsetT((stepOutputDirsField+2)*2))
	return s
}

func readTableString(t *flatbuffers.Table, field flatbuffers.VOffsetT) string {
	o := flatbuffers.UOffsetT(t.Offset(field))
	if o == 0 {
		return ""
	}
	return t.String(t.Pos + o)
}

func readTableBool(t *flatbuffers.Table, field flatbuffers.VOffsetT) bool {
	o := flatbuffers.UOffsetT(t.Offset(field))
	if o == 0 {
		return false
	}
	return t.GetBool(t.Pos + o)
}

func readTableInt32(t *flatbuffers.Table, field flatbuffers.VOffsetT) int {
	o := flatbuffers.UOffsetT(t.Offset(field))
	if o == 0 {
		return 0
	}
	return int(t.GetInt32(t.Pos + o))
}

func decodePool(t flatbuffers.Table) (string, int) {
	name := readTableString(&t, (poolNameField+2)*2)
	depth := readTableInt32(&t, (poolDepthField+2)*2)
	return name, depth
}

// decodeManifest parses buf, previously produced by encodeManifest, back
// into a CompiledManifest. It returns an error if the version word
// doesn't match what this build writes.
func decodeManifest(buf []byte) (*CompiledManifest, error) {
	n := flatbuffers.GetUOffsetT(buf)
	root := &flatbuffers.Table{}
	root.Bytes = buf
	root.Pos = n

	version := uint64(0)
	if o := flatbuffers.UOffsetT(root.Offset(flatbuffers.VOffsetT((manifestVersionField + 2) * 2))); o != 0 {
		version = root.GetUint64(root.Pos + o)
	}
	if version != sidecarVersion {
		return nil, errSidecarVersionMismatch
	}

	cm := &CompiledManifest{
		OutputIndex: map[string]StepIndex{},
		InputIndex:  map[string][]StepIndex{},
		Pools:       map[string]int{},
	}

	if o := flatbuffers.UOffsetT(root.Offset(flatbuffers.VOffsetT((manifestStepsField + 2) * 2))); o != 0 {
		vecStart := root.Vector(o)
		n := root.VectorLen(o)
		cm.Steps = make([]Step, n)
		for i := 0; i < n; i++ {
			var st flatbuffers.Table
			st.Bytes = buf
			st.Pos = vecStart + flatbuffers.UOffsetT(i*4)
			indirect := flatbuffers.GetUOffsetT(buf[st.Pos:])
			st.Pos = st.Pos + indirect
			cm.Steps[i] = decodeStep(st)
		}
	}

	if o := flatbuffers.UOffsetT(root.Offset(flatbuffers.VOffsetT((manifestPoolsField + 2) * 2))); o != 0 {
		vecStart := root.Vector(o)
		n := root.VectorLen(o)
		for i := 0; i < n; i++ {
			var pt flatbuffers.Table
			pt.Bytes = buf
			pt.Pos = vecStart + flatbuffers.UOffsetT(i*4)
			indirect := flatbuffers.GetUOffsetT(buf[pt.Pos:])
			pt.Pos = pt.Pos + indirect
			name, depth := decodePool(pt)
			cm.Pools[name] = depth
		}
	}

	defaults := readInt32Vector(root, flatbuffers.VOffsetT((manifestDefaultsField+2)*2))
	cm.Defaults = make([]StepIndex, len(defaults))
	for i, d := range defaults {
		cm.Defaults[i] = StepIndex(d)
	}
	roots := readInt32Vector(root, flatbuffers.VOffsetT((manifestRootsField+2)*2))
	cm.Roots = make([]StepIndex, len(roots))
	for i, r := range roots {
		cm.Roots[i] = StepIndex(r)
	}
	// The slot is omitted when it holds its default of -1 (no regeneration
	// step), so an absent slot decodes to -1 rather than to 0.
	cm.RegenerationStep = -1
	if o := flatbuffers.UOffsetT(root.Offset(flatbuffers.VOffsetT((manifestRegenerationStepField + 2) * 2))); o != 0 {
		cm.RegenerationStep = StepIndex(root.GetInt32(root.Pos + o))
	}
	cm.ManifestFiles = readStringVector(root, flatbuffers.VOffsetT((manifestFilesField+2)*2))

	for i, s := range cm.Steps {
		for _, o := range s.Outputs {
			cm.OutputIndex[o] = StepIndex(i)
		}
		for _, in := range s.Inputs {
			cm.InputIndex[in] = append(cm.InputIndex[in], StepIndex(i))
		}
	}

	return cm, nil
}
