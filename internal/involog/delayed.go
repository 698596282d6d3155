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

package involog

import (
	"time"

	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// DelayedAppender holds a finished invocation's log entry in memory while
// the wall clock second has not yet ticked past the latest mtime/ctime
// among its fingerprinted outputs. Flushing once the clock advances yields
// a race-safe fingerprint on disk and spares every future build a rehash
// (spec §4.C).
type DelayedAppender struct {
	underlying Log
	fs         fsx.FileSystem
	clock      func() time.Time
	pending    []bufferedInvocation
}

type bufferedInvocation struct {
	step       fshash.Hash
	outputs    []string
	inputs     []string
	ignored    []uint32
	additional []fshash.Hash
	boundary   time.Time // the second that must fully elapse before flush
}

// NewDelayedAppender wraps an Appender (or any Log) with the delay
// behavior, observing outputs' mtime/ctime via fs.
func NewDelayedAppender(underlying Log, fs fsx.FileSystem, clock func() time.Time) *DelayedAppender {
	if clock == nil {
		clock = time.Now
	}
	return &DelayedAppender{underlying: underlying, fs: fs, clock: clock}
}

func (d *DelayedAppender) CreatedDirectory(path string) error { return d.underlying.CreatedDirectory(path) }
func (d *DelayedAppender) RemovedDirectory(path string) error { return d.underlying.RemovedDirectory(path) }

// RanCommand buffers the invocation and opportunistically flushes anything
// already past its boundary.
func (d *DelayedAppender) RanCommand(step fshash.Hash, outputs, inputs []string, ignored []uint32, additional []fshash.Hash) error {
	boundary := time.Time{}
	for _, path := range outputs {
		info, err := d.fs.Lstat(path)
		if err != nil {
			return err
		}
		if info.MTime.After(boundary) {
			boundary = info.MTime
		}
		if info.CTime.After(boundary) {
			boundary = info.CTime
		}
	}
	d.pending = append(d.pending, bufferedInvocation{
		step: step, outputs: outputs, inputs: inputs,
		ignored: ignored, additional: additional,
		boundary: boundary.Truncate(time.Second),
	})
	return d.tick()
}

func (d *DelayedAppender) CleanedCommand(step fshash.Hash) error {
	return d.underlying.CleanedCommand(step)
}

// tick flushes every buffered entry whose boundary second has fully
// elapsed.
func (d *DelayedAppender) tick() error {
	now := d.clock().Truncate(time.Second)
	kept := d.pending[:0]
	for _, b := range d.pending {
		if now.After(b.boundary) {
			if err := d.underlying.RanCommand(b.step, b.outputs, b.inputs, b.ignored, b.additional); err != nil {
				return err
			}
		} else {
			kept = append(kept, b)
		}
	}
	d.pending = kept
	return nil
}

// Flush flushes every buffered entry immediately, regardless of the race
// boundary. Called on orchestrator shutdown.
func (d *DelayedAppender) Flush() error {
	for _, b := range d.pending {
		if err := d.underlying.RanCommand(b.step, b.outputs, b.inputs, b.ignored, b.additional); err != nil {
			return err
		}
	}
	d.pending = nil
	return d.underlying.Flush()
}

var _ Log = (*DelayedAppender)(nil)
