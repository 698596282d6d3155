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
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/maruel/shuriken/internal/fshash"
)

// recompactFloor and recompactRatio gate Parsed.NeedsRecompaction: below
// this fraction of live records, and only once the log has grown past the
// floor, is a recompaction worth its cost (spec §4.C).
const (
	recompactRatio = 3
	recompactFloor = 1000
)

// Parsed is the result of loading an on-disk log.
type Parsed struct {
	Invocations *Invocations
	// Truncated reports whether the parser hit a corrupt tail and cut the
	// file back to the last known-good entry; this is a recovered
	// warning, not a fatal error (spec §4.C, §7).
	Truncated bool
	// GoodBytes is the byte offset of the last known-good entry boundary;
	// a recompaction (or a future append) should treat this as the live
	// end of file.
	GoodBytes int64
	// NeedsRecompaction is set when live records fall under 1/3 of total
	// and total exceeds 1000.
	NeedsRecompaction bool
	// CreatedDirectoryPaths are the live (non-tombstoned) directory paths
	// Shuriken recorded creating. The parser cannot know their FileId
	// without touching a live filesystem; call ResolveCreatedDirectories
	// once one is available.
	CreatedDirectoryPaths []string

	// PathIDs and LastFingerprintIndex let an Appender continue writing
	// to this log without re-assigning ids or rehashing files whose
	// fingerprint is already known.
	PathIDs               map[string]uint32
	LastFingerprintIndex  map[string]int
	NextPathID            uint32
	NextFingerprintID     uint32

	totalEntries int
	liveEntries  int
}

// Parse streams entries from r in order, in a single pass, maintaining
// path-id/fingerprint-id tables as it goes. It tolerates a missing file
// (returns an empty, not-found Parsed and io.ErrUnexpectedEOF is not
// treated as an error at that point) by leaving that to the caller: Load
// is the usual entry point.
func Parse(r io.ReaderAt, size int64) (*Parsed, error) {
	p := &Parsed{
		Invocations:          NewInvocations(),
		PathIDs:              map[string]uint32{},
		LastFingerprintIndex: map[string]int{},
	}

	var pathsByID []string
	var fingerprintsByID []int // index into Invocations.Fingerprints

	header := make([]byte, len(signature)+4)
	if size < int64(len(header)) {
		return nil, fmt.Errorf("involog: truncated header")
	}
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("involog: reading header: %w", err)
	}
	if !bytes.Equal(header[:len(signature)], []byte(signature)) {
		return nil, fmt.Errorf("involog: bad signature")
	}
	gotVersion := getUint32(header[len(signature):])
	if gotVersion != version {
		return nil, fmt.Errorf("involog: unsupported version %d", gotVersion)
	}

	offset := int64(len(header))
	good := offset
	for offset+4 <= size {
		hdr := make([]byte, 4)
		if _, err := r.ReadAt(hdr, offset); err != nil {
			break
		}
		word := getUint32(hdr)
		k := kind(word & kindMask)
		payloadSize := int(word >> 2)
		entryEnd := offset + 4 + int64(align4(payloadSize))
		if payloadSize < 0 || entryEnd > size {
			p.Truncated = true
			break
		}
		payload := make([]byte, payloadSize)
		if _, err := r.ReadAt(payload, offset+4); err != nil {
			p.Truncated = true
			break
		}

		ok := p.applyEntry(k, payload, &pathsByID, &fingerprintsByID)
		if !ok {
			p.Truncated = true
			break
		}
		p.totalEntries++
		offset = entryEnd
		good = offset
	}
	if offset < size {
		// Trailing bytes too short for an entry header are a corrupt tail too.
		p.Truncated = true
	}
	p.GoodBytes = good
	p.NextPathID = uint32(len(pathsByID))
	p.NextFingerprintID = uint32(len(fingerprintsByID))
	if p.totalEntries > recompactFloor && p.liveEntries*recompactRatio < p.totalEntries {
		p.NeedsRecompaction = true
	}
	return p, nil
}

// Load opens path and parses it; a missing file is not an error, it
// returns a fresh empty Parsed. The returned bool reports whether the file
// existed.
func Load(path string) (*Parsed, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Parsed{
				Invocations:          NewInvocations(),
				PathIDs:              map[string]uint32{},
				LastFingerprintIndex: map[string]int{},
			}, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	p, err := Parse(f, info.Size())
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// applyEntry updates p.Invocations from a single decoded entry. Returns
// false if the entry is structurally invalid (a forward reference, a bad
// size), signaling the caller to stop and truncate.
func (p *Parsed) applyEntry(k kind, payload []byte, pathsByID *[]string, fingerprintsByID *[]int) bool {
	switch k {
	case kindPath:
		if len(payload) == 0 {
			return false
		}
		nul := bytes.IndexByte(payload, 0)
		if nul < 0 {
			return false
		}
		path := string(payload[:nul])
		p.PathIDs[path] = uint32(len(*pathsByID))
		*pathsByID = append(*pathsByID, path)
		return true

	case kindDirOrFingerprint:
		if len(payload) == 4 {
			id := getUint32(payload)
			if int(id) >= len(*pathsByID) {
				return false
			}
			path := (*pathsByID)[id]
			p.CreatedDirectoryPaths = append(p.CreatedDirectoryPaths, path)
			return true
		}
		if len(payload) != 4+fingerprintSize {
			return false
		}
		id := getUint32(payload)
		if int(id) >= len(*pathsByID) {
			return false
		}
		path := (*pathsByID)[id]
		fp := decodeFingerprint(payload[4:])
		idx := len(p.Invocations.Fingerprints)
		p.Invocations.Fingerprints = append(p.Invocations.Fingerprints, FingerprintRecord{Path: path, Fingerprint: fp})
		*fingerprintsByID = append(*fingerprintsByID, idx)
		p.LastFingerprintIndex[path] = idx
		return true

	case kindInvocation:
		if len(payload) < fshash.Size+16 {
			return false
		}
		var h fshash.Hash
		copy(h[:], payload[:fshash.Size])
		off := fshash.Size
		nOut := getUint32(payload[off:])
		off += 4
		nIn := getUint32(payload[off:])
		off += 4
		nIgnored := getUint32(payload[off:])
		off += 4
		nAdditional := getUint32(payload[off:])
		off += 4

		need := off + int(nOut+nIn)*4 + int(nIgnored)*4 + int(nAdditional)*fshash.Size
		if need != len(payload) {
			return false
		}

		e := Entry{}
		for i := uint32(0); i < nOut+nIn; i++ {
			fid := getUint32(payload[off:])
			off += 4
			if int(fid) >= len(*fingerprintsByID) {
				return false
			}
			idx := (*fingerprintsByID)[fid]
			if i < nOut {
				e.OutputFiles = append(e.OutputFiles, idx)
			} else {
				e.InputFiles = append(e.InputFiles, idx)
			}
		}
		for i := uint32(0); i < nIgnored; i++ {
			e.IgnoredDependencies = append(e.IgnoredDependencies, getUint32(payload[off:]))
			off += 4
		}
		for i := uint32(0); i < nAdditional; i++ {
			var ah fshash.Hash
			copy(ah[:], payload[off:off+fshash.Size])
			off += fshash.Size
			e.AdditionalDependencies = append(e.AdditionalDependencies, ah)
		}
		if _, existed := p.Invocations.Entries[h]; !existed {
			p.liveEntries++
		}
		p.Invocations.Entries[h] = e
		return true

	case kindDeleted:
		if len(payload) == 4 {
			id := getUint32(payload)
			if int(id) >= len(*pathsByID) {
				return false
			}
			path := (*pathsByID)[id]
			for i, p2 := range p.CreatedDirectoryPaths {
				if p2 == path {
					p.CreatedDirectoryPaths = append(p.CreatedDirectoryPaths[:i], p.CreatedDirectoryPaths[i+1:]...)
					break
				}
			}
			return true
		}
		if len(payload) == fshash.Size {
			var h fshash.Hash
			copy(h[:], payload)
			if _, existed := p.Invocations.Entries[h]; existed {
				delete(p.Invocations.Entries, h)
				p.liveEntries--
			}
			return true
		}
		return false
	}
	return false
}
