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
	"os"
	"path/filepath"
)

// Compact rewrites path to contain only live entries: every created
// directory still tracked, and every surviving invocation, replaying their
// already-known fingerprints rather than rehashing. The new file replaces
// path atomically.
func Compact(path string, inv *Invocations, createdDirectoryPaths []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".shk_log.compact-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeHeader(tmp); err != nil {
		tmp.Close()
		return err
	}

	pathIDs := map[string]uint32{}
	var nextPathID uint32
	ensureID := func(p string) (uint32, error) {
		if id, ok := pathIDs[p]; ok {
			return id, nil
		}
		id := nextPathID
		payload := append([]byte(p), 0)
		if err := writeEntryTo(tmp, kindPath, payload); err != nil {
			return 0, err
		}
		pathIDs[p] = id
		nextPathID++
		return id, nil
	}

	for _, p := range createdDirectoryPaths {
		id, err := ensureID(p)
		if err != nil {
			tmp.Close()
			return err
		}
		payload := make([]byte, 4)
		putUint32(payload, id)
		if err := writeEntryTo(tmp, kindDirOrFingerprint, payload); err != nil {
			tmp.Close()
			return err
		}
	}

	fingerprintIDs := make([]uint32, len(inv.Fingerprints))
	var nextFingerprintID uint32
	writeFingerprint := func(idx int) (uint32, error) {
		rec := inv.Fingerprints[idx]
		pathID, err := ensureID(rec.Path)
		if err != nil {
			return 0, err
		}
		id := nextFingerprintID
		payload := make([]byte, 4+fingerprintSize)
		putUint32(payload, pathID)
		copy(payload[4:], encodeFingerprint(rec.Fingerprint))
		if err := writeEntryTo(tmp, kindDirOrFingerprint, payload); err != nil {
			return 0, err
		}
		nextFingerprintID++
		return id, nil
	}

	for step, e := range inv.Entries {
		outIDs := make([]uint32, len(e.OutputFiles))
		for i, idx := range e.OutputFiles {
			id, alreadyWritten := writtenFingerprintID(fingerprintIDs, idx)
			if !alreadyWritten {
				var err error
				id, err = writeFingerprint(idx)
				if err != nil {
					tmp.Close()
					return err
				}
				fingerprintIDs[idx] = id + 1
			}
			outIDs[i] = id
		}
		inIDs := make([]uint32, len(e.InputFiles))
		for i, idx := range e.InputFiles {
			id, alreadyWritten := writtenFingerprintID(fingerprintIDs, idx)
			if !alreadyWritten {
				var err error
				id, err = writeFingerprint(idx)
				if err != nil {
					tmp.Close()
					return err
				}
				fingerprintIDs[idx] = id + 1
			}
			inIDs[i] = id
		}

		payload := make([]byte, 0, 20+16+4*(len(outIDs)+len(inIDs)+len(e.IgnoredDependencies))+20*len(e.AdditionalDependencies))
		payload = append(payload, step[:]...)
		var counts [16]byte
		putUint32(counts[0:], uint32(len(outIDs)))
		putUint32(counts[4:], uint32(len(inIDs)))
		putUint32(counts[8:], uint32(len(e.IgnoredDependencies)))
		putUint32(counts[12:], uint32(len(e.AdditionalDependencies)))
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
		for _, id := range e.IgnoredDependencies {
			var b [4]byte
			putUint32(b[:], id)
			payload = append(payload, b[:]...)
		}
		for _, h := range e.AdditionalDependencies {
			payload = append(payload, h[:]...)
		}
		if err := writeEntryTo(tmp, kindInvocation, payload); err != nil {
			tmp.Close()
			return err
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// writtenFingerprintID looks up whether fingerprint index idx has already
// been written to the compacted log; ids array stores id+1 so the zero
// value means "not written".
func writtenFingerprintID(ids []uint32, idx int) (uint32, bool) {
	v := ids[idx]
	if v == 0 {
		return 0, false
	}
	return v - 1, true
}

func writeHeader(f *os.File) error {
	if _, err := f.WriteString(signature); err != nil {
		return err
	}
	var v [4]byte
	putUint32(v[:], version)
	_, err := f.Write(v[:])
	return err
}

func writeEntryTo(f *os.File, k kind, payload []byte) error {
	padded := align4(len(payload))
	word := uint32(len(payload))<<2 | uint32(k)
	buf := make([]byte, 4+padded)
	putUint32(buf, word)
	copy(buf[4:], payload)
	_, err := f.Write(buf)
	return err
}
