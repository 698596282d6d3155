// Copyright 2011 Google Inc. All Rights Reserved.
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

// Package fshash holds the primitive identity types shared by the
// fingerprint engine, the invocation log and the compiled manifest: a
// 160-bit content hash and a (device, inode) file identity.
package fshash

import (
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Size is the width in bytes of a Hash, matching the 160-bit hash the spec
// requires for step identity and fingerprint content hashes.
const Size = 20

// hashKey gives the BLAKE2b instance domain separation; any collision
// resistant keyed 160-bit hash satisfies the spec, the key value itself is
// not observable outside this package.
var hashKey = [16]byte{'s', 'h', 'u', 'r', 'i', 'k', 'e', 'n', '-', 'f', 'p', '-', 'v', '1', 0, 0}

// Hash is an opaque 160-bit value. Equality and hashing are bytewise.
type Hash [Size]byte

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash, the value recorded for
// missing files.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// sum finalizes a running blake2b hash.Hash into a Hash value.
func sum(h hash.Hash) Hash {
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// FromReader streams r through the keyed hash, used for regular file
// content per spec §4.A.
func FromReader(r io.Reader) (Hash, error) {
	h, err := blake2b.New(Size, hashKey[:])
	if err != nil {
		return Hash{}, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return Hash{}, err
	}
	return sum(h), nil
}

// FromBytes hashes a byte slice directly.
func FromBytes(b []byte) Hash {
	h, err := blake2b.New(Size, hashKey[:])
	if err != nil {
		// blake2b.New only fails for an invalid size/key length, both fixed
		// constants here, so this can't happen.
		panic(err)
	}
	h.Write(b)
	return sum(h)
}

// DirNames hashes the sorted list of a directory's child names, separated
// by a NUL byte (a byte that cannot occur in a filename), per spec §4.A.
func DirNames(names []string) Hash {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return FromBytes([]byte(strings.Join(sorted, "\x00")))
}

// SymlinkTarget hashes a symlink's target string.
func SymlinkTarget(target string) Hash {
	return FromBytes([]byte(target))
}

// FileId identifies "the same file on disk regardless of path": the pair
// (device, inode) produced by a successful stat. The zero value means "no
// successful stat performed" rather than a valid identity.
type FileId struct {
	Dev uint64
	Ino uint64
}

// Valid reports whether id was populated from a real stat.
func (id FileId) Valid() bool {
	return id != FileId{}
}
