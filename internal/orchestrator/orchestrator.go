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

// Package orchestrator is the top-level loop (spec §4.H): load or
// compile the manifest, regenerate it if its own rule is dirty, open
// and lock the invocation log, run the build engine, and translate the
// outcome to a process exit code. Grounded on the teacher's ninja.go
// (NinjaMain.run/RunBuild shape).
package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/maruel/shuriken/internal/buildgraph"
	"github.com/maruel/shuriken/internal/engine"
	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fsx"
	"github.com/maruel/shuriken/internal/involog"
	"github.com/maruel/shuriken/internal/manifest"
	"github.com/maruel/shuriken/internal/runner"
	"github.com/maruel/shuriken/internal/status"
)

// maxRegenerationIterations bounds the regenerate-and-reload cycle
// (spec §4.H: "bounded at 100 iterations to prevent livelock").
const maxRegenerationIterations = 100

// ExitCode mirrors the three outcomes the spec names: 0 success, 1
// build error, 2 interrupted.
type ExitCode int

const (
	ExitSuccess     ExitCode = 0
	ExitBuildError  ExitCode = 1
	ExitInterrupted ExitCode = 2
)

// Options configures one orchestrator invocation.
type Options struct {
	ManifestPath string
	LogPath      string
	Targets      []string
	Config       engine.Config
	Verbosity    status.Verbosity
}

// Run executes one full Shuriken invocation end to end.
func Run(opts Options) ExitCode {
	fs := fsx.FileSystem(fsx.NewReal())
	if opts.Config.DryRun {
		fs = fsx.NewDryRun(fs)
	}
	st := status.NewPrinter(opts.Verbosity, opts.Config.Parallelism)

	cm, err := loadOrCompileManifest(fs, opts.ManifestPath)
	if err != nil {
		st.Error("loading %s: %v", opts.ManifestPath, err)
		return ExitBuildError
	}

	fp := fingerprint.NewEngine(fs)

	lock, err := involog.AcquireLock(opts.LogPath)
	if err != nil {
		st.Error("locking %s: %v", opts.LogPath, err)
		return ExitBuildError
	}
	defer lock.Release()

	opened, err := involog.Open(opts.LogPath, fs, fp, time.Now, opts.Config.DryRun)
	if err != nil {
		st.Error("opening %s: %v", opts.LogPath, err)
		return ExitBuildError
	}
	defer opened.Close()

	run := buildRunner(opts.Config)
	eng := engine.New(cm, fs, fp, opened.Parsed.Invocations, opened.Log, run, st, opts.Config)

	for iter := 0; cm.RegenerationStep >= 0; iter++ {
		if iter >= maxRegenerationIterations {
			st.Error("manifest %s did not stabilize after %d regenerations", opts.ManifestPath, maxRegenerationIterations)
			return ExitBuildError
		}
		rebuilt, code := regenerateManifest(eng, cm, st)
		if code != ExitSuccess {
			return code
		}
		if !rebuilt {
			break
		}
		newCM, err := loadOrCompileManifest(fs, opts.ManifestPath)
		if err != nil {
			st.Error("reloading %s after regeneration: %v", opts.ManifestPath, err)
			return ExitBuildError
		}
		cm = newCM
		eng = engine.New(cm, fs, fp, opened.Parsed.Invocations, opened.Log, run, st, opts.Config)
	}

	if err := eng.CleanStaleOutputs(); err != nil {
		st.Error("cleaning stale outputs: %v", err)
		return ExitBuildError
	}

	targets, err := resolveTargets(cm, opts.Targets)
	if err != nil {
		st.Error("%v", err)
		return ExitBuildError
	}

	b := eng.Plan(targets)
	if err := eng.PrecomputeMemo(b); err != nil {
		st.Error("matching fingerprints: %v", err)
		return ExitBuildError
	}

	outcome, err := eng.Run(b)
	if err := opened.Log.Flush(); err != nil {
		st.Error("flushing invocation log: %v", err)
	}
	if err != nil {
		st.Error("%v", err)
		return ExitBuildError
	}
	switch outcome {
	case engine.Success:
		return ExitSuccess
	case engine.Interrupted:
		return ExitInterrupted
	default:
		return ExitBuildError
	}
}

// regenerateManifest asks the engine to build the manifest-regeneration
// step alone; if it produces new bytes, the caller must reload the
// compiled manifest and retry, up to maxRegenerationIterations times.
func regenerateManifest(eng *engine.Engine, cm *buildgraph.CompiledManifest, st status.Status) (bool, ExitCode) {
	before, err := manifestDigest(eng, cm)
	if err != nil {
		st.Error("reading manifest for regeneration check: %v", err)
		return false, ExitBuildError
	}

	b := eng.Plan([]buildgraph.StepIndex{cm.RegenerationStep})
	if err := eng.PrecomputeMemo(b); err != nil {
		st.Error("matching fingerprints: %v", err)
		return false, ExitBuildError
	}
	outcome, err := eng.Run(b)
	if err != nil {
		st.Error("%v", err)
		return false, ExitBuildError
	}
	switch outcome {
	case engine.Interrupted:
		return false, ExitInterrupted
	case engine.Failed:
		return false, ExitBuildError
	}

	after, err := manifestDigest(eng, cm)
	if err != nil {
		st.Error("reading manifest after regeneration: %v", err)
		return false, ExitBuildError
	}
	return before != after, ExitSuccess
}

func manifestDigest(eng *engine.Engine, cm *buildgraph.CompiledManifest) (string, error) {
	if cm.RegenerationStep < 0 {
		return "", nil
	}
	b, err := os.ReadFile(cm.Steps[cm.RegenerationStep].Outputs[0])
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

// loadOrCompileManifest checks the sidecar cache before re-parsing the
// manifest text (spec §4.E's closing paragraph).
func loadOrCompileManifest(fs fsx.FileSystem, manifestPath string) (*buildgraph.CompiledManifest, error) {
	sidecarPath := manifestPath + ".shkc"
	cm, err := buildgraph.LoadSidecar(sidecarPath)
	if err == nil && cm != nil && buildgraph.SidecarFresh(sidecarPath, cm.ManifestFiles) {
		return cm, nil
	}

	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	raw, err := manifest.ParseManifest(manifest.OSFileReader{}, manifest.ParseOptions{}, manifestPath, content)
	if err != nil {
		return nil, err
	}
	cm, err = buildgraph.Compile(raw, manifestPath)
	if err != nil {
		return nil, err
	}
	if err := buildgraph.SaveSidecar(sidecarPath, cm); err != nil {
		return nil, fmt.Errorf("writing sidecar: %w", err)
	}
	return cm, nil
}

// resolveTargets maps user-specified target paths to step indices via
// the compiled manifest's output index. Matching is exact on output
// paths; "^suffix" target syntax is not recognized.
func resolveTargets(cm *buildgraph.CompiledManifest, targets []string) ([]buildgraph.StepIndex, error) {
	var out []buildgraph.StepIndex
	for _, t := range targets {
		idx, ok := cm.OutputIndex[t]
		if !ok {
			return nil, fmt.Errorf("unknown target %q", t)
		}
		out = append(out, idx)
	}
	return out, nil
}

// buildRunner assembles the runner.Runner stack per the Config: a real
// subprocess runner under Limited's -j/-l admission control, or DryRun for
// "-n" (spec §4.F decorators). Limited gets no pool map, so among pools
// only the built-in console pool is limited; the manifest's own pool
// depths are not applied.
func buildRunner(cfg engine.Config) runner.Runner {
	if cfg.DryRun {
		return runner.NewDryRun()
	}
	return runner.NewLimited(runner.NewSubprocess(), cfg.Parallelism, cfg.MaxLoadAvg, nil)
}
