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
	"fmt"

	"github.com/gofrs/flock"
)

// Lock is the advisory file lock held on a sibling ".lock" file for the
// lifetime of a build (spec §4.C: "The log is assumed single-writer.").
type Lock struct {
	f *flock.Flock
}

// AcquireLock locks logPath+".lock", blocking other Shuriken processes
// from writing the same log concurrently.
func AcquireLock(logPath string) (*Lock, error) {
	f := flock.New(logPath + ".lock")
	locked, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("involog: locking %s: %w", logPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("involog: %s is locked by another process", logPath)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.f.Unlock()
}
