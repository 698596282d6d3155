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

package runner

import (
	"bytes"
	"os/exec"
	"sync"
)

// subprocessShell and its flag pick the shell the teacher's
// SubprocessSetGeneric used: Go, unlike the traced original, needs an
// already-parsed argv, so every command string is handed to a shell rather
// than split ourselves.
const subprocessShell = "/bin/sh"
const subprocessFlag = "-c"

type inFlight struct {
	cmd  *exec.Cmd
	buf  bytes.Buffer
	pool string
	cb   Callback
	done chan struct{}
}

// Subprocess runs step commands as real child processes, using the Go
// runtime's own poller instead of the teacher's hand-rolled poll/pselect
// loop (the teacher's comment on SubprocessSet notes exactly this: "The Go
// runtime already handles poll under the hood so this abstraction layer
// has to be replaced").
//
// It reports empty InputFiles/OutputFiles sets: syscall-level filesystem
// tracing is an out-of-scope external collaborator (spec's CommandRunner
// section names it as consumed, not built, here); Tracing wraps this
// Runner at the point a real tracer would plug in.
type Subprocess struct {
	mu      sync.Mutex
	running map[*inFlight]struct{}
	done    chan *inFlight
	interrupted bool
}

// NewSubprocess returns a Runner that executes every command through a
// shell and collects its combined stdout/stderr.
func NewSubprocess() *Subprocess {
	return &Subprocess{
		running: map[*inFlight]struct{}{},
		done:    make(chan *inFlight, 64),
	}
}

func (s *Subprocess) Invoke(command, poolName string, cb Callback) {
	f := &inFlight{pool: poolName, cb: cb, done: make(chan struct{})}
	f.cmd = exec.Command(subprocessShell, subprocessFlag, command)
	f.cmd.Stdout = &f.buf
	f.cmd.Stderr = &f.buf

	s.mu.Lock()
	s.running[f] = struct{}{}
	s.mu.Unlock()

	if err := f.cmd.Start(); err != nil {
		f.buf.WriteString(err.Error())
		go func() { s.done <- f }()
		return
	}
	go func() {
		f.cmd.Wait()
		s.done <- f
	}()
}

func (s *Subprocess) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Subprocess) CanRunMore() bool { return true }

// RunCommands blocks for at least one completion, delivering every
// completion that's already queued before returning, matching the
// teacher's DoWork contract ("a process completed, return true").
func (s *Subprocess) RunCommands() bool {
	f := <-s.done
	s.deliver(f)
	for {
		select {
		case f := <-s.done:
			s.deliver(f)
		default:
			return s.interrupted
		}
	}
}

func (s *Subprocess) deliver(f *inFlight) {
	s.mu.Lock()
	delete(s.running, f)
	s.mu.Unlock()

	exitStatus := 1
	if f.cmd.ProcessState != nil {
		exitStatus = f.cmd.ProcessState.ExitCode()
	}
	f.cb(&Result{
		InputFiles:  map[string]DependencyType{},
		OutputFiles: map[string]struct{}{},
		ExitStatus:  exitStatus,
		Output:      f.buf.String(),
	})
}

// Interrupt marks the next RunCommands return as interrupted, for a
// SIGINT/SIGTERM/SIGHUP handler to call (spec §5's cancellation model).
func (s *Subprocess) Interrupt() {
	s.mu.Lock()
	s.interrupted = true
	for f := range s.running {
		if f.pool != "console" && f.cmd.Process != nil {
			f.cmd.Process.Kill()
		}
	}
	s.mu.Unlock()
}

var _ Runner = (*Subprocess)(nil)
