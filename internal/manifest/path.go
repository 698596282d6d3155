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

package manifest

import "strings"

// CanonicalizePath collapses "." and ".." components and duplicate
// separators out of path, the way every build-statement path is
// normalized before it becomes a step identity (spec §1). slashBits
// records, bit-per-component from the least significant bit, which
// separators were backslashes, so a canonicalized path can be rendered
// back in its original flavor on Windows; it is always 0 on POSIX paths.
func CanonicalizePath(path string) (string, uint64) {
	if path == "" {
		return path, 0
	}

	rooted := strings.HasPrefix(path, "/")
	var components []string
	var slashBits uint64
	bit := uint64(0)

	start := 0
	if rooted {
		start = 1
	}
	for i := start; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' || path[i] == '\\' {
			comp := path[start:i]
			switch comp {
			case "", ".":
				// Skip.
			case "..":
				if len(components) > 0 && components[len(components)-1] != ".." {
					components = components[:len(components)-1]
					if bit > 0 {
						slashBits &^= 1 << (bit - 1)
						bit--
					}
				} else if !rooted {
					components = append(components, comp)
					if i < len(path) && path[i] == '\\' {
						slashBits |= 1 << bit
					}
					bit++
				}
			default:
				components = append(components, comp)
				if i < len(path) && path[i] == '\\' {
					slashBits |= 1 << bit
				}
				bit++
			}
			start = i + 1
		}
	}

	var out strings.Builder
	if rooted {
		out.WriteByte('/')
	}
	for i, c := range components {
		if i > 0 {
			out.WriteByte('/')
		}
		out.WriteString(c)
	}
	result := out.String()
	if result == "" {
		result = "."
	}
	return result, slashBits
}
