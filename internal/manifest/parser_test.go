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

import "testing"

type mapFileReader map[string][]byte

func (m mapFileReader) ReadFile(path string) ([]byte, error) {
	if b, ok := m[path]; ok {
		return b, nil
	}
	return nil, &pathError{path}
}

type pathError struct{ path string }

func (e *pathError) Error() string { return "no such file: " + e.path }

func TestParseBasicBuildStatement(t *testing.T) {
	src := "rule cc\n  command = gcc -c $in -o $out\n\nbuild out.o: cc in.c\n"
	m, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Steps) != 1 {
		t.Fatalf("len(Steps) = %d, want 1", len(m.Steps))
	}
	step := m.Steps[0]
	if got, want := step.Command, "gcc -c in.c -o out.o"; got != want {
		t.Errorf("Command = %q, want %q", got, want)
	}
	if len(step.Outputs) != 1 || step.Outputs[0] != "out.o" {
		t.Errorf("Outputs = %v", step.Outputs)
	}
	if len(step.Inputs) != 1 || step.Inputs[0] != "in.c" {
		t.Errorf("Inputs = %v", step.Inputs)
	}
}

func TestParseImplicitAndOrderOnly(t *testing.T) {
	src := "rule cc\n  command = gcc $in -o $out\n\nbuild out: cc in1 | hdr.h || gen\n"
	m, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	step := m.Steps[0]
	if got, want := step.Command, "gcc in1 -o out"; got != want {
		t.Errorf("Command = %q, want %q (implicit/order-only must not leak into $in)", got, want)
	}
	if len(step.Inputs) != 3 {
		t.Fatalf("Inputs = %v, want 3 entries", step.Inputs)
	}
	if step.ImplicitInputs != 1 || step.OrderOnlyInputs != 1 {
		t.Errorf("ImplicitInputs=%d OrderOnlyInputs=%d, want 1,1", step.ImplicitInputs, step.OrderOnlyInputs)
	}
}

func TestParsePoolDepth(t *testing.T) {
	src := "pool link_pool\n  depth = 4\n\nrule link\n  command = ld $in -o $out\n  pool = link_pool\n\nbuild a.out: link a.o\n"
	m, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	pool, ok := m.Pools["link_pool"]
	if !ok || pool.Depth != 4 {
		t.Fatalf("Pools[link_pool] = %+v, ok=%v", pool, ok)
	}
	if m.Steps[0].Pool != "link_pool" {
		t.Errorf("step.Pool = %q, want link_pool", m.Steps[0].Pool)
	}
}

func TestParseDefaultTargets(t *testing.T) {
	src := "rule cc\n  command = gcc $in -o $out\n\nbuild out.o: cc in.c\n\ndefault out.o\n"
	m, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Defaults) != 1 || m.Defaults[0] != "out.o" {
		t.Errorf("Defaults = %v", m.Defaults)
	}
}

func TestParsePhonySelfCycleDropped(t *testing.T) {
	src := "build all: phony all lib.a\n"
	m, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	step := m.Steps[0]
	for _, in := range step.Inputs {
		if in == "all" {
			t.Fatalf("phony self-reference should have been filtered, got Inputs=%v", step.Inputs)
		}
	}
}

func TestParseInclude(t *testing.T) {
	fr := mapFileReader{
		"rules.ninja": []byte("rule cc\n  command = gcc $in -o $out\n"),
	}
	src := "include rules.ninja\n\nbuild out.o: cc in.c\n"
	m, err := ParseManifest(fr, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Steps) != 1 || m.Steps[0].Command != "gcc in.c -o out.o" {
		t.Fatalf("Steps = %+v", m.Steps)
	}
}

func TestParseSubninjaAddsSteps(t *testing.T) {
	fr := mapFileReader{
		"sub.ninja": []byte("rule cc\n  command = gcc $in -o $out\n\nbuild sub.o: cc sub.c\n"),
	}
	src := "subninja sub.ninja\n"
	m, err := ParseManifest(fr, ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Steps) != 1 || m.Steps[0].Outputs[0] != "sub.o" {
		t.Fatalf("Steps = %+v", m.Steps)
	}
}

func TestParseDuplicateRuleError(t *testing.T) {
	src := "rule cc\n  command = gcc\nrule cc\n  command = gcc2\n"
	_, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err == nil {
		t.Fatal("expected an error for a duplicate rule")
	}
}

func TestParseUnknownRuleError(t *testing.T) {
	src := "build out: cc in\n"
	_, err := ParseManifest(mapFileReader{}, ParseOptions{}, "build.ninja", []byte(src))
	if err == nil {
		t.Fatal("expected an error for an unknown build rule")
	}
}

func TestCanonicalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"foo.c", "foo.c"},
		{"./foo.c", "foo.c"},
		{"foo//bar", "foo/bar"},
		{"foo/./bar", "foo/bar"},
		{"foo/bar/../baz", "foo/baz"},
		{"../foo", "../foo"},
		{"/foo/../bar", "/bar"},
		{"", ""},
	}
	for _, c := range cases {
		got, _ := CanonicalizePath(c.in)
		if got != c.want {
			t.Errorf("CanonicalizePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
