// Copyright 2012 Google Inc. All Rights Reserved.
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

// Package runner runs step commands and reports the files they touched,
// generalizing the teacher's SubprocessSet into the CommandRunner shape
// (spec §4.F): invoke, size, can_run_more, run_commands, plus Limited,
// Tracing and DryRun decorators layered over a real subprocess runner.
package runner

// DependencyType distinguishes a file that was truly read from one whose
// read is ambiguous (e.g. a directory probed only to check existence) and
// so should be ignored when it names a directory.
type DependencyType int

const (
	Always DependencyType = iota
	IgnoreIfDirectory
)

// Result is delivered to a step's callback exactly once, from within a
// Runner.RunCommands call, when its command has finished.
type Result struct {
	InputFiles  map[string]DependencyType
	OutputFiles map[string]struct{}
	ExitStatus  int
	Output      string
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool { return r.ExitStatus == 0 }

// Callback is invoked exactly once per command, from inside RunCommands.
type Callback func(*Result)

// Runner abstracts command execution: it is the one extension point a
// networked or simulated build would need (spec's "CommandRunner interface
// of §4.F is the only extension point needed").
type Runner interface {
	// Invoke enqueues command for execution against the named pool
	// ("" means the default, unlimited pool); cb fires on completion.
	Invoke(command, poolName string, cb Callback)
	// Size reports how many commands are currently in flight.
	Size() int
	// CanRunMore reports whether another command may be started right now.
	CanRunMore() bool
	// RunCommands blocks until at least one in-flight command completes,
	// delivering every completed command's callback before returning.
	// It returns true if the wait was interrupted by a signal.
	RunCommands() bool
}
