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
	"encoding/binary"
	"time"

	"github.com/maruel/shuriken/internal/fingerprint"
	"github.com/maruel/shuriken/internal/fshash"
	"github.com/maruel/shuriken/internal/fsx"
)

// signature and version identify the file per spec §6 ("Invocation log
// file. Exact binary format per §4.C. Version word currently 1.").
const (
	signature = "# shk invocation log v"
	version   = uint32(1)
)

// kind is the low two bits of every entry header.
type kind uint32

const (
	kindPath kind = iota
	kindDirOrFingerprint
	kindInvocation
	kindDeleted
)

const kindMask = 0x3

// align4 rounds n up to the next multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}

func putUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func getUint32(src []byte) uint32    { return binary.LittleEndian.Uint32(src) }

// fingerprintSize is the encoded byte length of a Fingerprint: a 4-byte
// mode+padding word, six 8-byte fields (Size, Ino, Dev, MTime, CTime,
// Timestamp), a 20-byte hash. It is a multiple of 4 so entries that embed
// it stay 4-byte aligned without extra padding.
const fingerprintSize = 4 + 6*8 + fshash.Size

func encodeFingerprint(fp fingerprint.Fingerprint) []byte {
	buf := make([]byte, fingerprintSize)
	buf[0] = byte(fp.Mode)
	off := 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(fp.Size))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], fp.Ino)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], fp.Dev)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(fp.MTime.UnixNano()))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(fp.CTime.UnixNano()))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(fp.Timestamp.UnixNano()))
	off += 8
	copy(buf[off:], fp.Hash[:])
	return buf
}

func decodeFingerprint(buf []byte) fingerprint.Fingerprint {
	fp := fingerprint.Fingerprint{Mode: fsx.Kind(buf[0])}
	off := 4
	fp.Size = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	fp.Ino = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	fp.Dev = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	fp.MTime = time.Unix(0, int64(binary.LittleEndian.Uint64(buf[off:])))
	off += 8
	fp.CTime = time.Unix(0, int64(binary.LittleEndian.Uint64(buf[off:])))
	off += 8
	fp.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(buf[off:])))
	off += 8
	copy(fp.Hash[:], buf[off:off+fshash.Size])
	return fp
}
