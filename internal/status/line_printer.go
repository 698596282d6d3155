// Copyright 2013 Google Inc. All Rights Reserved.
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

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// LineType distinguishes a status line that may be elided to fit the
// terminal width from one that must be printed in full.
type LineType int

const (
	Full LineType = iota
	Elide
)

// LinePrinter overprints a single status line on a smart terminal,
// buffering output while the console pool holds the lock (spec §4.F:
// "pool console has depth 1" — the one running step using it writes
// straight to the terminal, and everyone else's status updates queue).
type LinePrinter struct {
	smartTerminal bool
	supportsColor bool
	haveBlankLine bool
	consoleLocked bool

	lineBuffer  string
	lineType    LineType
	outputBuffer strings.Builder

	initialized bool
}

func (l *LinePrinter) init() {
	if l.initialized {
		return
	}
	l.initialized = true
	l.haveBlankLine = true
	l.smartTerminal = isSmartTerminal()
	l.supportsColor = l.smartTerminal
	if !l.supportsColor {
		force := os.Getenv("CLICOLOR_FORCE")
		l.supportsColor = force != "" && force != "0"
	}
}

func isSmartTerminal() bool {
	term := os.Getenv("TERM")
	if term == "dumb" {
		return false
	}
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}

func terminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 0
	}
	return int(ws.Col)
}

func (l *LinePrinter) IsSmartTerminal() bool { l.init(); return l.smartTerminal }
func (l *LinePrinter) SetSmartTerminal(v bool) { l.init(); l.smartTerminal = v }
func (l *LinePrinter) SupportsColor() bool { l.init(); return l.supportsColor }

// Print shows toPrint as the current status line, overprinting the
// previous one on a smart terminal, or buffering it if the console pool
// is locked by a running console-pool step.
func (l *LinePrinter) Print(toPrint string, lineType LineType) {
	l.init()
	if l.consoleLocked {
		l.lineBuffer = toPrint
		l.lineType = lineType
		return
	}

	if l.smartTerminal {
		os.Stdout.WriteString("\r")
	}

	if l.smartTerminal && lineType == Elide {
		if w := terminalWidth(); w > 0 {
			toPrint = elideMiddle(toPrint, w)
		}
		os.Stdout.WriteString(toPrint)
		os.Stdout.WriteString("\x1b[K")
		l.haveBlankLine = false
	} else {
		os.Stdout.WriteString(toPrint)
		os.Stdout.WriteString("\n")
	}
}

func (l *LinePrinter) printOrBuffer(data string) {
	if l.consoleLocked {
		l.outputBuffer.WriteString(data)
	} else {
		os.Stdout.WriteString(data)
	}
}

// PrintOnNewLine flushes any buffered status line and starts toPrint on
// its own fresh line.
func (l *LinePrinter) PrintOnNewLine(toPrint string) {
	l.init()
	if l.consoleLocked && l.lineBuffer != "" {
		l.outputBuffer.WriteString(l.lineBuffer)
		l.outputBuffer.WriteString("\n")
		l.lineBuffer = ""
	}
	if !l.haveBlankLine {
		l.printOrBuffer("\n")
	}
	if toPrint != "" {
		l.printOrBuffer(toPrint)
	}
	l.haveBlankLine = toPrint == "" || toPrint[len(toPrint)-1] == '\n'
}

// SetConsoleLocked toggles whether a console-pool step owns the
// terminal; unlocking flushes whatever was buffered while it ran.
func (l *LinePrinter) SetConsoleLocked(locked bool) {
	l.init()
	if locked == l.consoleLocked {
		return
	}
	if locked {
		l.PrintOnNewLine("")
	}
	l.consoleLocked = locked
	if !locked {
		l.PrintOnNewLine(l.outputBuffer.String())
		if l.lineBuffer != "" {
			l.Print(l.lineBuffer, l.lineType)
		}
		l.outputBuffer.Reset()
		l.lineBuffer = ""
	}
}

// elideMiddle truncates s to width by replacing its middle with "...",
// so a long command line still shows its head and tail.
func elideMiddle(s string, width int) string {
	const elision = "..."
	if width < 1 || len(s) <= width {
		return s
	}
	if width < len(elision) {
		return s[:width]
	}
	available := width - len(elision)
	half := available / 2
	return s[:half] + elision + s[len(s)-(available-half):]
}

// StripAnsiEscapeCodes removes ANSI CSI sequences (e.g. color codes) from
// in, used when the output destination isn't a terminal that can render
// them (spec's ambient status stack keeps this teacher behavior).
func StripAnsiEscapeCodes(in string) string {
	var out strings.Builder
	out.Grow(len(in))
	for i := 0; i < len(in); i++ {
		if in[i] != 0x1b {
			out.WriteByte(in[i])
			continue
		}
		if i+1 < len(in) && in[i+1] == '[' {
			j := i + 2
			for j < len(in) && (in[j] < 0x40 || in[j] > 0x7e) {
				j++
			}
			if j < len(in) {
				j++
			}
			i = j - 1
			continue
		}
	}
	return out.String()
}
