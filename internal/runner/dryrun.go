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

// DryRun completes every command immediately with empty file sets and a
// success exit status, without starting a process (spec §4.F's
// "Dry-run" decorator, backing `-n`).
type DryRun struct {
	queue []func()
}

// NewDryRun returns a Runner suitable for a `-n` invocation.
func NewDryRun() *DryRun { return &DryRun{} }

func (d *DryRun) Invoke(command, poolName string, cb Callback) {
	d.queue = append(d.queue, func() {
		cb(&Result{
			InputFiles:  map[string]DependencyType{},
			OutputFiles: map[string]struct{}{},
			ExitStatus:  0,
		})
	})
}

func (d *DryRun) Size() int { return len(d.queue) }

func (d *DryRun) CanRunMore() bool { return true }

func (d *DryRun) RunCommands() bool {
	if len(d.queue) == 0 {
		return false
	}
	queue := d.queue
	d.queue = nil
	for _, fn := range queue {
		fn()
	}
	return false
}

var _ Runner = (*DryRun)(nil)
