// Copyright 2016 Google Inc. All Rights Reserved.
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

package status

import "testing"

func TestFormatProgressStatusPlaceholders(t *testing.T) {
	p := NewPrinter(Normal, 4)
	p.totalSteps = 10
	p.startedSteps = 3
	p.finishedSteps = 2
	p.runningSteps = 1

	cases := map[string]string{
		"%s/%t": "3/10",
		"%u":    "7",
		"%r":    "1",
		"%f":    "2",
		"%%":    "%",
	}
	for format, want := range cases {
		if got := p.FormatProgressStatus(format, 1000); got != want {
			t.Errorf("FormatProgressStatus(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestFormatProgressStatusPercent(t *testing.T) {
	p := NewPrinter(Normal, 2)
	p.totalSteps = 4
	p.finishedSteps = 1
	if got, want := p.FormatProgressStatus("%p", 0), " 25%"; got != want {
		t.Errorf("FormatProgressStatus(%%p) = %q, want %q", got, want)
	}
}

func TestFormatProgressStatusZeroTotalDoesNotPanic(t *testing.T) {
	p := NewPrinter(Normal, 1)
	if got, want := p.FormatProgressStatus("%p", 0), "  0%"; got != want {
		t.Errorf("FormatProgressStatus(%%p) with zero total = %q, want %q", got, want)
	}
}

func TestStripAnsiEscapeCodes(t *testing.T) {
	in := "\x1b[31mFAILED\x1b[0m: build it"
	if got, want := StripAnsiEscapeCodes(in), "FAILED: build it"; got != want {
		t.Errorf("StripAnsiEscapeCodes = %q, want %q", got, want)
	}
}

func TestElideMiddle(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	got := elideMiddle(long, 20)
	if len(got) > 20 {
		t.Errorf("elideMiddle result too long: %d bytes", len(got))
	}
	if short := elideMiddle("short", 20); short != "short" {
		t.Errorf("elideMiddle should leave a string under width untouched, got %q", short)
	}
}
