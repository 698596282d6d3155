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

// Command shk is a correctness-first, fingerprint-verified build tool
// in the Ninja family. Its flag layout and tool dispatch are grounded
// in the teacher's ninja.go (readFlags/guessParallelism/chooseTool),
// adapted to Shuriken's engine/orchestrator packages.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/maruel/shuriken/internal/engine"
	"github.com/maruel/shuriken/internal/orchestrator"
	"github.com/maruel/shuriken/internal/status"
)

// guessParallelism picks a default -j value the way the teacher does:
// leave headroom for I/O-bound jobs alongside CPU-bound ones.
func guessParallelism() int {
	switch n := runtime.NumCPU(); n {
	case 0, 1:
		return 2
	case 2:
		return 3
	default:
		return n + 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: shk [options] [targets...]\n\n")
	fmt.Fprintf(os.Stderr, "if targets are unspecified, builds the manifest's default targets.\n\n")
	flag.PrintDefaults()
}

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) orchestrator.ExitCode {
	fs := flag.NewFlagSet("shk", flag.ContinueOnError)
	fs.Usage = usage

	inputFile := fs.String("f", "build.ninja", "specify input build file")
	workingDir := fs.String("C", "", "change to DIR before doing anything else")
	parallelism := fs.Int("j", guessParallelism(), "run N jobs in parallel (0 means infinity)")
	failuresAllowed := fs.Int("k", 1, "keep going until N jobs fail (0 means infinity)")
	maxLoadAvg := fs.Float64("l", 0, "do not start new jobs if the load average is greater than N")
	dryRun := fs.Bool("n", false, "dry run (don't run commands but act like they succeeded)")
	tool := fs.String("t", "", "run a subtool (use '-t list' to list subtools)")
	verbose := fs.Bool("v", false, "show all command lines while building")
	quiet := fs.Bool("quiet", false, "don't show progress status, just command output")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return orchestrator.ExitSuccess
		}
		return orchestrator.ExitBuildError
	}

	if *verbose && *quiet {
		fmt.Fprintln(os.Stderr, "can't use both -v and -quiet")
		return orchestrator.ExitBuildError
	}

	if *workingDir != "" {
		if err := os.Chdir(*workingDir); err != nil {
			fmt.Fprintf(os.Stderr, "shk: changing to %q: %v\n", *workingDir, err)
			return orchestrator.ExitBuildError
		}
	}

	logPath := filepath.Join(filepath.Dir(*inputFile), ".shk_log")

	if *tool != "" {
		return orchestrator.RunTool(*tool, orchestrator.ToolOptions{
			ManifestPath: *inputFile,
			LogPath:      logPath,
			Args:         fs.Args(),
		})
	}

	verbosity := status.Normal
	switch {
	case *quiet:
		verbosity = status.Quiet
	case *verbose:
		verbosity = status.Verbose
	}

	jobs := *parallelism
	if jobs <= 0 {
		jobs = 1 << 16
	}
	failures := *failuresAllowed
	if failures <= 0 {
		failures = 1 << 30
	}

	return orchestrator.Run(orchestrator.Options{
		ManifestPath: *inputFile,
		LogPath:      logPath,
		Targets:      fs.Args(),
		Verbosity:    verbosity,
		Config: engine.Config{
			Parallelism: jobs,
			MaxLoadAvg:  *maxLoadAvg,
			KeepGoing:   failures,
			DryRun:      *dryRun,
		},
	})
}
