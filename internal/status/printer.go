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

// Package status tracks and prints build progress, following the shape
// of the teacher's status.go: a sliding build-rate estimator and a
// NINJA_STATUS-style format string, printed over a single status line on
// a smart terminal.
package status

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/maruel/shuriken/internal/buildgraph"
)

// Verbosity controls how much PrintStatus prints.
type Verbosity int

const (
	Normal Verbosity = iota
	Quiet
	NoStatusUpdate
	Verbose
)

// Status is the interface the engine drives as a build progresses.
type Status interface {
	PlanHasTotalSteps(total int)
	StepStarted(step *buildgraph.Step, startMillis int64)
	StepFinished(step *buildgraph.Step, endMillis int64, success bool, output string)
	BuildStarted()
	BuildFinished()

	Info(msg string, args ...interface{})
	Warning(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Printer implements Status by printing human-readable progress to
// stdout/stderr, mirroring the teacher's StatusPrinter.
type Printer struct {
	Verbosity   Verbosity
	Parallelism int

	startedSteps, finishedSteps, totalSteps, runningSteps int
	timeMillis                                            int64

	line LinePrinter

	progressFormat string
	rate           slidingRateInfo
}

type slidingRateInfo struct {
	rate       float64
	n          int
	times      []float64
	lastUpdate int
}

func (r *slidingRateInfo) updateRate(updateHint int, timeMillis int64) {
	if updateHint == r.lastUpdate {
		return
	}
	r.lastUpdate = updateHint

	if len(r.times) == r.n {
		r.times = r.times[1:]
	}
	r.times = append(r.times, float64(timeMillis))
	front := r.times[0]
	back := r.times[len(r.times)-1]
	if back != front {
		r.rate = float64(len(r.times)) / ((back - front) / 1e3)
	}
}

// NewPrinter returns a Printer reading its format string from
// NINJA_STATUS, the environment variable name kept verbatim per the
// spec's external-interface list.
func NewPrinter(verbosity Verbosity, parallelism int) *Printer {
	p := &Printer{
		Verbosity:   verbosity,
		Parallelism: parallelism,
		rate: slidingRateInfo{
			rate:       -1,
			n:          parallelism,
			lastUpdate: -1,
		},
	}
	if verbosity != Normal {
		p.line.SetSmartTerminal(false)
	}
	p.progressFormat = os.Getenv("NINJA_STATUS")
	if p.progressFormat == "" {
		p.progressFormat = "[%f/%t] "
	}
	return p
}

func (p *Printer) PlanHasTotalSteps(total int) { p.totalSteps = total }

func (p *Printer) StepStarted(step *buildgraph.Step, startMillis int64) {
	p.startedSteps++
	p.runningSteps++
	p.timeMillis = startMillis
	if step.UsesConsole() || p.line.IsSmartTerminal() {
		p.PrintStatus(step, startMillis)
	}
	if step.UsesConsole() {
		p.line.SetConsoleLocked(true)
	}
}

func (p *Printer) StepFinished(step *buildgraph.Step, endMillis int64, success bool, output string) {
	p.timeMillis = endMillis
	p.finishedSteps++

	if step.UsesConsole() {
		p.line.SetConsoleLocked(false)
	}
	if p.Verbosity == Quiet {
		return
	}
	if !step.UsesConsole() {
		p.PrintStatus(step, endMillis)
	}
	p.runningSteps--

	if !success {
		outputs := strings.Join(step.Outputs, " ")
		if p.line.SupportsColor() {
			p.line.PrintOnNewLine("\x1b[31mFAILED:\x1b[0m " + outputs + "\n")
		} else {
			p.line.PrintOnNewLine("FAILED: " + outputs + "\n")
		}
		p.line.PrintOnNewLine(step.Command + "\n")
	}

	if len(output) != 0 {
		final := output
		if !p.line.SupportsColor() {
			final = StripAnsiEscapeCodes(output)
		}
		p.line.PrintOnNewLine(final)
	}
}

func (p *Printer) BuildStarted() {
	p.startedSteps = 0
	p.finishedSteps = 0
	p.runningSteps = 0
}

func (p *Printer) BuildFinished() {
	p.line.SetConsoleLocked(false)
	p.line.PrintOnNewLine("")
}

// FormatProgressStatus expands the NINJA_STATUS placeholders (%s, %t,
// %r, %u, %f, %o, %c, %p, %e, %%) against the printer's current counts.
func (p *Printer) FormatProgressStatus(format string, timeMillis int64) string {
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			out.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case '%':
			out.WriteByte('%')
		case 's':
			out.WriteString(strconv.Itoa(p.startedSteps))
		case 't':
			out.WriteString(strconv.Itoa(p.totalSteps))
		case 'r':
			out.WriteString(strconv.Itoa(p.runningSteps))
		case 'u':
			out.WriteString(strconv.Itoa(p.totalSteps - p.startedSteps))
		case 'f':
			out.WriteString(strconv.Itoa(p.finishedSteps))
		case 'o':
			if p.timeMillis <= 0 {
				out.WriteString("?")
			} else {
				rate := float64(p.finishedSteps) / float64(p.timeMillis) * 1000
				fmt.Fprintf(&out, "%.1f", rate)
			}
		case 'c':
			p.rate.updateRate(p.finishedSteps, p.timeMillis)
			if p.rate.rate < 0 {
				out.WriteString("?")
			} else {
				fmt.Fprintf(&out, "%.1f", p.rate.rate)
			}
		case 'p':
			percent := 0
			if p.totalSteps > 0 {
				percent = (100 * p.finishedSteps) / p.totalSteps
			}
			fmt.Fprintf(&out, "%3d%%", percent)
		case 'e':
			fmt.Fprintf(&out, "%.3f", float64(p.timeMillis)*0.001)
		default:
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}
	return out.String()
}

// PrintStatus prints step's progress line, unless verbosity suppresses
// it entirely.
func (p *Printer) PrintStatus(step *buildgraph.Step, timeMillis int64) {
	if p.Verbosity == Quiet || p.Verbosity == NoStatusUpdate {
		return
	}
	forceFullCommand := p.Verbosity == Verbose

	toPrint := step.Description
	if toPrint == "" || forceFullCommand {
		toPrint = step.Command
	}
	toPrint = p.FormatProgressStatus(p.progressFormat, timeMillis) + toPrint

	lineType := Elide
	if forceFullCommand {
		lineType = Full
	}
	p.line.Print(toPrint, lineType)
}

func (p *Printer) Warning(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "shk: warning: "+msg+"\n", args...)
}

func (p *Printer) Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "shk: error: "+msg+"\n", args...)
}

func (p *Printer) Info(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "shk: "+msg+"\n", args...)
}

var _ Status = (*Printer)(nil)
