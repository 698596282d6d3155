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
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/shuriken/internal/manifest"
)

func parseRaw(t *testing.T, src string) *manifest.RawManifest {
	t.Helper()
	m, err := manifest.ParseManifest(manifest.OSFileReader{}, manifest.ParseOptions{}, "build.ninja", []byte(src))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	return m
}

func TestCompileResolvesDependencies(t *testing.T) {
	raw := parseRaw(t, "rule cc\n  command = gcc $in -o $out\nrule link\n  command = ld $in -o $out\n\nbuild a.o: cc a.c\nbuild b.o: cc b.c\nbuild a.out: link a.o b.o\n")
	cm, err := Compile(raw, "build.ninja")
	if err != nil {
		t.Fatal(err)
	}
	link := cm.Steps[cm.OutputIndex["a.out"]]
	if len(link.Dependencies) != 2 {
		t.Fatalf("Dependencies = %v, want 2 entries", link.Dependencies)
	}
	names := map[string]bool{}
	for _, d := range link.Dependencies {
		names[cm.Steps[d].Outputs[0]] = true
	}
	if !names["a.o"] || !names["b.o"] {
		t.Errorf("Dependencies resolved to %v, want a.o and b.o", names)
	}
}

func TestCompileMarksRoots(t *testing.T) {
	raw := parseRaw(t, "rule cc\n  command = gcc $in -o $out\n\nbuild a.o: cc a.c\nbuild a.out: cc a.o\n")
	cm, err := Compile(raw, "build.ninja")
	if err != nil {
		t.Fatal(err)
	}
	if len(cm.Roots) != 1 || cm.Steps[cm.Roots[0]].Outputs[0] != "a.out" {
		t.Fatalf("Roots = %v", cm.Roots)
	}
}

func TestCompileRejectsDuplicateOutput(t *testing.T) {
	raw := parseRaw(t, "rule cc\n  command = gcc $in -o $out\n\nbuild a.o: cc a.c\nbuild a.o: cc b.c\n")
	if _, err := Compile(raw, "build.ninja"); err == nil {
		t.Fatal("expected an error for a duplicated output")
	}
}

func TestCompileDetectsCycle(t *testing.T) {
	raw := parseRaw(t, "rule cc\n  command = gcc $in -o $out\n\nbuild a: cc b\nbuild b: cc a\n")
	_, err := Compile(raw, "build.ninja")
	if err == nil {
		t.Fatal("expected an error for a dependency cycle")
	}
	if !strings.Contains(err.Error(), "→") {
		t.Errorf("error %q does not describe the cycle", err)
	}
}

func TestCompileRejectsDirectGeneratorNormalCrossing(t *testing.T) {
	raw := parseRaw(t, "rule regen\n  command = configure\n  generator = 1\nrule cc\n  command = gcc $in -o $out\n\nbuild build.ninja: regen configure.py\nbuild a.o: cc build.ninja\n")
	if _, err := Compile(raw, "build.ninja"); err == nil {
		t.Fatal("expected an error for a normal step depending directly on a generator step")
	}
}

func TestCompileAllowsGeneratorNormalCrossingThroughPhony(t *testing.T) {
	raw := parseRaw(t, "rule regen\n  command = configure\n  generator = 1\nrule cc\n  command = gcc $in -o $out\n\nbuild build.ninja: regen configure.py\nbuild bridge: phony build.ninja\nbuild a.o: cc bridge\n")
	if _, err := Compile(raw, "build.ninja"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompileResolvesRegenerationStep(t *testing.T) {
	raw := parseRaw(t, "rule regen\n  command = configure\n  generator = 1\n\nbuild build.ninja: regen configure.py\n")
	cm, err := Compile(raw, "build.ninja")
	if err != nil {
		t.Fatal(err)
	}
	if cm.RegenerationStep != cm.OutputIndex["build.ninja"] {
		t.Errorf("RegenerationStep = %d, want %d", cm.RegenerationStep, cm.OutputIndex["build.ninja"])
	}
}

func TestCompileUnknownPoolIsError(t *testing.T) {
	raw := parseRaw(t, "rule link\n  command = ld $in -o $out\n  pool = missing\n\nbuild a.out: link a.o\n")
	if _, err := Compile(raw, "build.ninja"); err == nil {
		t.Fatal("expected an error for an undeclared pool")
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	raw := parseRaw(t, "rule cc\n  command = gcc $in -o $out\nrule link\n  command = ld $in -o $out\n\nbuild a.o: cc a.c\nbuild a.out: link a.o\ndefault a.out\n")
	cm, err := Compile(raw, "build.ninja")
	if err != nil {
		t.Fatal(err)
	}
	cm.ManifestFiles = []string{"build.ninja"}

	path := filepath.Join(t.TempDir(), "manifest.cache")
	if err := SaveSidecar(path, cm); err != nil {
		t.Fatal(err)
	}
	got, err := LoadSidecar(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Steps) != len(cm.Steps) {
		t.Fatalf("len(Steps) = %d, want %d", len(got.Steps), len(cm.Steps))
	}
	for i, s := range got.Steps {
		want := cm.Steps[i]
		if s.Command != want.Command || s.Hash != want.Hash {
			t.Errorf("Steps[%d] = %+v, want %+v", i, s, want)
		}
	}
	if len(got.ManifestFiles) != 1 || got.ManifestFiles[0] != "build.ninja" {
		t.Errorf("ManifestFiles = %v", got.ManifestFiles)
	}
}

func TestLoadSidecarMissingReturnsNil(t *testing.T) {
	got, err := LoadSidecar(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil || got != nil {
		t.Fatalf("LoadSidecar = %v, %v, want nil, nil", got, err)
	}
}
