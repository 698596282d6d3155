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

// Tracer observes the files a running command touches, filling in the
// InputFiles/OutputFiles a Result would otherwise report empty. The real
// implementation (e.g. filtering a kernel kdebug trace stream to BSD and
// filesystem classes on Apple platforms) is an out-of-scope external
// collaborator; Tracing is the seam it plugs into. Start begins observing
// command before it is launched and returns a handle; Stop ends the
// observation once the command has finished and reports what it saw.
type Tracer interface {
	Start(command string) interface{}
	Stop(handle interface{}) (inputs map[string]DependencyType, outputs map[string]struct{})
}

// Tracing decorates a Runner so every command's Result carries real
// input/output file sets from tracer instead of the empty ones a bare
// Subprocess reports.
type Tracing struct {
	next   Runner
	tracer Tracer
}

// NewTracing wraps next so every command runs under tracer.
func NewTracing(next Runner, tracer Tracer) *Tracing {
	return &Tracing{next: next, tracer: tracer}
}

func (t *Tracing) Invoke(command, poolName string, cb Callback) {
	handle := t.tracer.Start(command)
	t.next.Invoke(command, poolName, func(r *Result) {
		inputs, outputs := t.tracer.Stop(handle)
		r.InputFiles = inputs
		r.OutputFiles = outputs
		cb(r)
	})
}

func (t *Tracing) Size() int         { return t.next.Size() }
func (t *Tracing) CanRunMore() bool  { return t.next.CanRunMore() }
func (t *Tracing) RunCommands() bool { return t.next.RunCommands() }

var _ Runner = (*Tracing)(nil)
