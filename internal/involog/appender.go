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
	"io"
	"time"

	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
)

// Log is the interface the build engine writes through; Appender is the
// usual implementation, DelayedAppender wraps it to hold writes back
// across a race boundary.
type Log interface {
	CreatedDirectory(path string) error
	RemovedDirectory(path string) error
	RanCommand(step fshash.Hash, outputs, inputs []string, ignored []uint32, additional []fshash.Hash) error
	CleanedCommand(step fshash.Hash) error
	Flush() error
}

// Appender writes entries incrementally to an open log file, reusing path
// and fingerprint ids already on disk and the fingerprint engine to decide
// whether a path's fingerprint changed since it was last recorded.
type Appender struct {
	w      io.Writer
	engine *fingerprint.Engine
	clock  func() time.Time

	pathIDs           map[string]uint32
	nextPathID        uint32
	lastFingerprint   map[string]fingerprint.Fingerprint
	lastFingerprintID map[string]uint32
	nextFingerprintID uint32
}

// NewAppender builds an Appender continuing from a previously Parsed log,
// writing new entries to w (typically the same file, opened for append).
func NewAppender(w io.Writer, parsed *Parsed, engine *fingerprint.Engine, clock func() time.Time) *Appender {
	a := &Appender{
		w:                 w,
		engine:            engine,
		clock:             clock,
		pathIDs:           map[string]uint32{},
		lastFingerprint:   map[string]fingerprint.Fingerprint{},
		lastFingerprintID: map[string]uint32{},
		nextPathID:        parsed.NextPathID,
		nextFingerprintID: parsed.NextFingerprintID,
	}
	for path, id := range parsed.PathIDs {
		a.pathIDs[path] = id
	}
	for path, idx := range parsed.LastFingerprintIndex {
		rec := parsed.Invocations.Fingerprints[idx]
		a.lastFingerprint[path] = rec.Fingerprint
		a.lastFingerprintID[path] = uint32(idx)
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	return a
}

func (a *Appender) writeEntry(k kind, payload []byte) error {
	padded := align4(len(payload))
	word := uint32(len(payload))<<2 | uint32(k)
	buf := make([]byte, 4+padded)
	putUint32(buf, word)
	copy(buf[4:], payload)
	_, err := a.w.Write(buf)
	return err
}

// ensurePathID writes a Path entry for path if one hasn't been written
// yet, returning its id either way.
func (a *Appender) ensurePathID(path string) (uint32, error) {
	if id, ok := a.pathIDs[path]; ok {
		return id, nil
	}
	id := a.nextPathID
	payload := append([]byte(path), 0)
	if err := a.writeEntry(kindPath, payload); err != nil {
		return 0, err
	}
	a.pathIDs[path] = id
	a.nextPathID++
	return id, nil
}

// CreatedDirectory records that Shuriken created path to make room for an
// output.
func (a *Appender) CreatedDirectory(path string) error {
	id, err := a.ensurePathID(path)
	if err != nil {
		return err
	}
	payload := make([]byte, 4)
	putUint32(payload, id)
	return a.writeEntry(kindDirOrFingerprint, payload)
}

// RemovedDirectory tombstones a previously created directory.
func (a *Appender) RemovedDirectory(path string) error {
	id, ok := a.pathIDs[path]
	if !ok {
		return nil
	}
	payload := make([]byte, 4)
	putUint32(payload, id)
	return a.writeEntry(kindDeleted, payload)
}

// ensureRecentFingerprint implements spec §4.D's ensure_recent: if a prior
// fingerprint is known for path, retake it; reuse the prior log-id when it
// didn't change, otherwise (or if nothing was known) write a fresh entry.
func (a *Appender) ensureRecentFingerprint(path string) (uint32, error) {
	prior, known := a.lastFingerprint[path]
	var fp fingerprint.Fingerprint
	var err error
	if known {
		fp, err = a.engine.Retake(a.clock(), path, prior)
	} else {
		fp, err = a.engine.Take(a.clock(), path)
	}
	if err != nil {
		return 0, err
	}
	if known && fp == prior {
		return a.lastFingerprintID[path], nil
	}
	pathID, err := a.ensurePathID(path)
	if err != nil {
		return 0, err
	}
	id := a.nextFingerprintID
	payload := make([]byte, 4+fingerprintSize)
	putUint32(payload, pathID)
	copy(payload[4:], encodeFingerprint(fp))
	if err := a.writeEntry(kindDirOrFingerprint, payload); err != nil {
		return 0, err
	}
	a.nextFingerprintID++
	a.lastFingerprint[path] = fp
	a.lastFingerprintID[path] = id
	return id, nil
}

// RanCommand logs a completed invocation: outputs and inputs are
// fingerprinted (reusing unchanged fingerprints), ignored/additional
// dependencies are recorded as given.
func (a *Appender) RanCommand(step fshash.Hash, outputs, inputs []string, ignored []uint32, additional []fshash.Hash) error {
	outIDs := make([]uint32, 0, len(outputs))
	for _, p := range outputs {
		id, err := a.ensureRecentFingerprint(p)
		if err != nil {
			return err
		}
		outIDs = append(outIDs, id)
	}
	inIDs := make([]uint32, 0, len(inputs))
	for _, p := range inputs {
		id, err := a.ensureRecentFingerprint(p)
		if err != nil {
			return err
		}
		inIDs = append(inIDs, id)
	}

	payload := make([]byte, 0, fshash.Size+16+4*(len(outIDs)+len(inIDs)+len(ignored))+fshash.Size*len(additional))
	payload = append(payload, step[:]...)
	var counts [16]byte
	putUint32(counts[0:], uint32(len(outIDs)))
	putUint32(counts[4:], uint32(len(inIDs)))
	putUint32(counts[8:], uint32(len(ignored)))
	putUint32(counts[12:], uint32(len(additional)))
	payload = append(payload, counts[:]...)
	for _, id := range outIDs {
		var b [4]byte
		putUint32(b[:], id)
		payload = append(payload, b[:]...)
	}
	for _, id := range inIDs {
		var b [4]byte
		putUint32(b[:], id)
		payload = append(payload, b[:]...)
	}
	for _, id := range ignored {
		var b [4]byte
		putUint32(b[:], id)
		payload = append(payload, b[:]...)
	}
	for _, h := range additional {
		payload = append(payload, h[:]...)
	}
	return a.writeEntry(kindInvocation, payload)
}

// CleanedCommand tombstones a step's invocation entry.
func (a *Appender) CleanedCommand(step fshash.Hash) error {
	return a.writeEntry(kindDeleted, step[:])
}

// Flush is a no-op for the direct Appender; writes already landed on w.
func (a *Appender) Flush() error { return nil }

var _ Log = (*Appender)(nil)
