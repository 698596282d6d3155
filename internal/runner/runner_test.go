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
	"sync"
	"testing"
)

func TestSubprocessRunsCommand(t *testing.T) {
	s := NewSubprocess()
	var got *Result
	s.Invoke("echo hello", "", func(r *Result) { got = r })
	s.RunCommands()
	if got == nil {
		t.Fatal("callback never fired")
	}
	if !got.Success() {
		t.Errorf("exit status = %d, want 0", got.ExitStatus)
	}
	if got.Output != "hello\n" {
		t.Errorf("output = %q, want %q", got.Output, "hello\n")
	}
}

func TestSubprocessReportsFailure(t *testing.T) {
	s := NewSubprocess()
	var got *Result
	s.Invoke("exit 3", "", func(r *Result) { got = r })
	s.RunCommands()
	if got.Success() {
		t.Fatal("expected failure")
	}
	if got.ExitStatus != 3 {
		t.Errorf("exit status = %d, want 3", got.ExitStatus)
	}
}

func TestDryRunNeverExecutes(t *testing.T) {
	d := NewDryRun()
	var got *Result
	d.Invoke("this-binary-does-not-exist-anywhere", "", func(r *Result) { got = r })
	if d.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", d.Size())
	}
	interrupted := d.RunCommands()
	if interrupted {
		t.Error("dry run should never report interrupted")
	}
	if got == nil || !got.Success() {
		t.Fatalf("dry run result = %+v, want a synthetic success", got)
	}
}

func TestLimitedSerializesConsolePool(t *testing.T) {
	s := NewSubprocess()
	l := NewLimited(s, 0, 0, map[string]int{})

	var mu sync.Mutex
	var order []string

	// Invoke blocks on the console semaphore until the first command's
	// callback releases it, so the second Invoke is issued from its own
	// goroutine, and pumping RunCommands here must finish them one at a
	// time, in order.
	l.Invoke("echo one", "console", func(r *Result) {
		mu.Lock()
		order = append(order, "one")
		mu.Unlock()
	})
	go func() {
		l.Invoke("echo two", "console", func(r *Result) {
			mu.Lock()
			order = append(order, "two")
			mu.Unlock()
		})
	}()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(order)
	}
	for count() < 2 {
		l.RunCommands()
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "one" || order[1] != "two" {
		t.Errorf("console pool did not serialize: order = %v", order)
	}
}

func TestLimitedDefaultsConsolePoolDepthOne(t *testing.T) {
	l := NewLimited(NewSubprocess(), 0, 0, nil)
	if l.poolSems["console"] == nil {
		t.Fatal("expected an implicit console pool semaphore")
	}
}
