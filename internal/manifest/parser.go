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

import (
	"fmt"
	"strconv"
	"strings"
)

// FileReader abstracts reading an included or subninja'd file, letting
// tests substitute an in-memory map instead of touching disk.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// ParseOptions controls parser leniency, mirroring the command-line
// warning flags a Ninja-family tool exposes.
type ParseOptions struct {
	// ErrOnDupeEdge is not consulted: internal/buildgraph.Compile always
	// rejects two steps that generate the same output.
	ErrOnDupeEdge bool
	// ErrOnPhonyCycle turns a self-referential phony target into a hard
	// error instead of silently dropping the self-edge.
	ErrOnPhonyCycle bool
	Quiet           bool
}

// subninjaResult is the message passed back from a subninja-prefetch
// goroutine: the file's content, ready for synchronous processing once
// the current file's own statements are done (spec §1: "subninja files
// are read as soon as the statement is parsed but only processed once the
// current file is done").
type subninjaResult struct {
	filename string
	input    []byte
	ls       lexerState
	err      error
}

// parser turns one file's bytes into RawManifest entries, recursing into
// include and (depth-first) subninja files.
type parser struct {
	fr      FileReader
	options ParseOptions

	manifest *RawManifest
	lexer    lexer
	env      *BindingEnv

	subninjas         chan subninjaResult
	subninjasEnqueued int
}

// phonyRuleName is the one rule name every manifest may use without
// declaring it: a build statement against it produces no command, only
// grouping its inputs under its outputs (spec §1's "phony steps").
const phonyRuleName = "phony"

var phonyRule = NewRule(phonyRuleName)

// ParseManifest parses the root manifest file content into a RawManifest.
func ParseManifest(fr FileReader, options ParseOptions, filename string, content []byte) (*RawManifest, error) {
	m := &RawManifest{Pools: map[string]RawPool{}}
	p := &parser{
		fr:       fr,
		options:  options,
		manifest: m,
		env:      NewBindingEnv(nil),
	}
	if err := p.parse(filename, content); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *parser) parse(filename string, content []byte) error {
	p.manifest.Files = append(p.manifest.Files, filename)
	input := newLexerInput(content)
	p.subninjas = make(chan subninjaResult)

	if err := p.lexer.Start(filename, input); err != nil {
		return err
	}

	var err error
loop:
	for err == nil {
		switch token := p.lexer.ReadToken(); token {
		case POOL:
			err = p.parsePool()
		case BUILD:
			err = p.parseEdge()
		case RULE:
			err = p.parseRule()
		case DEFAULT:
			err = p.parseDefault()
		case IDENT:
			err = p.parseIdent()
		case INCLUDE:
			err = p.parseInclude()
		case SUBNINJA:
			err = p.parseSubninja()
		case ERROR:
			err = p.lexer.Error(p.lexer.DescribeLastError())
		case TEOF:
			break loop
		case NEWLINE:
		default:
			err = p.lexer.Error("unexpected " + token.String())
		}
	}
	if err != nil {
		for i := 0; i < p.subninjasEnqueued; i++ {
			<-p.subninjas
		}
		return err
	}
	return p.processSubninjaQueue()
}

func (p *parser) parsePool() error {
	name := p.lexer.readIdent()
	if name == "" {
		return p.lexer.Error("expected pool name")
	}
	if err := p.expectToken(NEWLINE); err != nil {
		return err
	}
	if _, exists := p.manifest.Pools[name]; exists {
		return p.lexer.Error(fmt.Sprintf("duplicate pool '%s'", name))
	}

	depth := -1
	for p.lexer.PeekToken(INDENT) {
		key, value, err := p.parseLet()
		if err != nil {
			return err
		}
		if key != "depth" {
			return p.lexer.Error(fmt.Sprintf("unexpected variable '%s'", key))
		}
		var derr error
		if depth, derr = strconv.Atoi(value.Evaluate(p.env)); depth < 0 || derr != nil {
			return p.lexer.Error("invalid pool depth")
		}
	}
	if depth < 0 {
		return p.lexer.Error("expected 'depth =' line")
	}
	p.manifest.Pools[name] = RawPool{Name: name, Depth: depth}
	return nil
}

func (p *parser) parseRule() error {
	name := p.lexer.readIdent()
	if name == "" {
		return p.lexer.Error("expected rule name")
	}
	if err := p.expectToken(NEWLINE); err != nil {
		return err
	}
	if p.env.LookupRuleCurrentScope(name) != nil {
		return p.lexer.Error(fmt.Sprintf("duplicate rule '%s'", name))
	}

	rule := NewRule(name)
	for p.lexer.PeekToken(INDENT) {
		key, value, err := p.parseLet()
		if err != nil {
			return err
		}
		if !IsReservedBinding(key) {
			return p.lexer.Error(fmt.Sprintf("unexpected variable '%s'", key))
		}
		rule.Bindings[key] = value
	}

	b1, ok1 := rule.Binding("rspfile")
	b2, ok2 := rule.Binding("rspfile_content")
	if ok1 != ok2 || (ok1 && (len(b1.Parsed) == 0) != (len(b2.Parsed) == 0)) {
		return p.lexer.Error("rspfile and rspfile_content need to be both specified")
	}
	cmd, ok := rule.Binding("command")
	if !ok || len(cmd.Parsed) == 0 {
		return p.lexer.Error("expected 'command =' line")
	}
	p.env.AddRule(rule)
	return nil
}

func (p *parser) parseDefault() error {
	eval, err := p.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	if len(eval.Parsed) == 0 {
		return p.lexer.Error("expected target name")
	}
	for {
		path := eval.Evaluate(p.env)
		if len(path) == 0 {
			return p.lexer.Error("empty path")
		}
		path, _ = CanonicalizePath(path)
		p.manifest.Defaults = append(p.manifest.Defaults, path)

		eval, err = p.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(eval.Parsed) == 0 {
			break
		}
	}
	return p.expectToken(NEWLINE)
}

func (p *parser) parseIdent() error {
	p.lexer.UnreadToken()
	name, letValue, err := p.parseLet()
	if err != nil {
		return err
	}
	p.env.Bindings[name] = letValue.Evaluate(p.env)
	return nil
}

func (p *parser) parseEdge() error {
	var outs []EvalString
	for {
		ev, err := p.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(ev.Parsed) == 0 {
			break
		}
		outs = append(outs, ev)
	}
	implicitOuts := 0
	if p.lexer.PeekToken(PIPE) {
		for {
			ev, err := p.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			outs = append(outs, ev)
			implicitOuts++
		}
	}
	if len(outs) == 0 {
		return p.lexer.Error("expected path")
	}
	if err := p.expectToken(COLON); err != nil {
		return err
	}

	ruleName := p.lexer.readIdent()
	if ruleName == "" {
		return p.lexer.Error("expected build command name")
	}
	rule := p.env.LookupRule(ruleName)
	if rule == nil {
		if ruleName == phonyRuleName {
			rule = phonyRule
		} else {
			return p.lexer.Error(fmt.Sprintf("unknown build rule '%s'", ruleName))
		}
	}

	var ins []EvalString
	for {
		ev, err := p.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(ev.Parsed) == 0 {
			break
		}
		ins = append(ins, ev)
	}
	implicit := 0
	if p.lexer.PeekToken(PIPE) {
		for {
			ev, err := p.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			ins = append(ins, ev)
			implicit++
		}
	}
	orderOnly := 0
	if p.lexer.PeekToken(PIPE2) {
		for {
			ev, err := p.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			ins = append(ins, ev)
			orderOnly++
		}
	}
	var validations []EvalString
	if p.lexer.PeekToken(PIPEAT) {
		for {
			ev, err := p.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			validations = append(validations, ev)
		}
	}
	if err := p.expectToken(NEWLINE); err != nil {
		return err
	}

	hasIndent := p.lexer.PeekToken(INDENT)
	env := p.env
	if hasIndent {
		env = NewBindingEnv(p.env)
	}
	for hasIndent {
		key, val, err := p.parseLet()
		if err != nil {
			return err
		}
		env.Bindings[key] = val.Evaluate(p.env)
		hasIndent = p.lexer.PeekToken(INDENT)
	}

	step := RawStep{RuleName: rule.Name, ImplicitOutputs: implicitOuts, ImplicitInputs: implicit, OrderOnlyInputs: orderOnly}
	for i := range outs {
		path := outs[i].Evaluate(env)
		if len(path) == 0 {
			return p.lexer.Error("empty path")
		}
		path, _ = CanonicalizePath(path)
		step.Outputs = append(step.Outputs, path)
	}
	for _, iv := range ins {
		path := iv.Evaluate(env)
		if len(path) == 0 {
			return p.lexer.Error("empty path")
		}
		path, _ = CanonicalizePath(path)
		step.Inputs = append(step.Inputs, path)
	}
	for _, v := range validations {
		path := v.Evaluate(env)
		if path == "" {
			return p.lexer.Error("empty path")
		}
		path, _ = CanonicalizePath(path)
		step.Validations = append(step.Validations, path)
	}

	explicitOutputs := step.Outputs[:len(step.Outputs)-implicitOuts]
	explicitInputs := step.Inputs[:len(step.Inputs)-implicit-orderOnly]
	edgeScope := &edgeScope{BindingEnv: env, explicitIn: explicitInputs, explicitOut: explicitOutputs}

	step.Command = lookupBinding(edgeScope, rule, "command")
	step.Description = lookupBinding(edgeScope, rule, "description")
	step.Pool = lookupBinding(edgeScope, rule, "pool")
	step.Depfile = lookupBinding(edgeScope, rule, "depfile")
	step.Deps = lookupBinding(edgeScope, rule, "deps")
	step.Rspfile = lookupBinding(edgeScope, rule, "rspfile")
	step.RspfileContent = lookupBinding(edgeScope, rule, "rspfile_content")
	step.Dyndep = lookupBinding(edgeScope, rule, "dyndep")
	step.Generator = lookupBinding(edgeScope, rule, "generator") != ""
	step.Restat = lookupBinding(edgeScope, rule, "restat") != ""

	if rule.Name == phonyRuleName && len(step.Outputs) > 0 {
		out := step.Outputs[0]
		for i, in := range step.Inputs {
			if in == out {
				if p.options.ErrOnPhonyCycle {
					return p.lexer.Error(fmt.Sprintf("phony target '%s' names itself as an input", out))
				}
				step.Inputs = append(step.Inputs[:i], step.Inputs[i+1:]...)
				break
			}
		}
	}

	p.manifest.Steps = append(p.manifest.Steps, step)
	return nil
}

// edgeScope wraps an edge's lexical BindingEnv to additionally resolve the
// per-edge $in/$out variables a rule's command/description/etc. may
// reference (spec §1: "rule-body bindings ... see $in/$out").
type edgeScope struct {
	*BindingEnv
	explicitIn, explicitOut []string
}

func (s *edgeScope) LookupVariable(name string) string {
	switch name {
	case "in":
		return strings.Join(s.explicitIn, " ")
	case "in_newline":
		return strings.Join(s.explicitIn, "\n")
	case "out":
		return strings.Join(s.explicitOut, " ")
	}
	return s.BindingEnv.LookupVariable(name)
}

// lookupBinding resolves a rule-level binding: an edge-scope override
// (env's own bindings) takes precedence, then the rule's own late-bound
// EvalString evaluated against scope so it can see $in/$out, then the
// parent scope's plain variable (for bindings like "pool" set at the file
// level rather than per-rule).
func lookupBinding(scope *edgeScope, rule *Rule, key string) string {
	if v, ok := scope.Bindings[key]; ok {
		return v
	}
	if eval, ok := rule.Binding(key); ok {
		return eval.Evaluate(scope)
	}
	if scope.Parent != nil {
		return scope.Parent.LookupVariable(key)
	}
	return ""
}

func (p *parser) parseInclude() error {
	eval, err := p.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	ls := p.lexer.lexerState
	if err := p.expectToken(NEWLINE); err != nil {
		return err
	}
	path := eval.Evaluate(p.env)
	input, err := p.fr.ReadFile(path)
	if err != nil {
		return p.wrapError(fmt.Sprintf("loading '%s': %s", path, err), ls)
	}
	sub := &parser{fr: p.fr, options: p.options, manifest: p.manifest, env: p.env}
	return sub.parse(path, input)
}

func (p *parser) parseSubninja() error {
	eval, err := p.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	filename := eval.Evaluate(p.env)
	ls := p.lexer.lexerState
	if err := p.expectToken(NEWLINE); err != nil {
		return err
	}

	go func() {
		input, err := p.fr.ReadFile(filename)
		p.subninjas <- subninjaResult{filename: filename, input: input, ls: ls, err: err}
	}()
	p.subninjasEnqueued++
	return nil
}

func (p *parser) processSubninjaQueue() error {
	var err error
	for i := 0; i < p.subninjasEnqueued; i++ {
		r := <-p.subninjas
		if err != nil {
			continue
		}
		if r.err != nil {
			err = p.wrapError(fmt.Sprintf("loading '%s': %s", r.filename, r.err), r.ls)
			continue
		}
		sub := &parser{fr: p.fr, options: p.options, manifest: p.manifest, env: NewBindingEnv(p.env)}
		err = sub.parse(r.filename, newLexerInput(r.input))
	}
	return err
}

func (p *parser) parseLet() (string, EvalString, error) {
	key := p.lexer.readIdent()
	if key == "" {
		return "", EvalString{}, p.lexer.Error("expected variable name")
	}
	if err := p.expectToken(EQUALS); err != nil {
		return "", EvalString{}, err
	}
	eval, err := p.lexer.readEvalString(false)
	return key, eval, err
}

func (p *parser) expectToken(expected Token) error {
	if token := p.lexer.ReadToken(); token != expected {
		return p.lexer.Error("expected " + expected.String() + ", got " + token.String() + expected.errorHint())
	}
	return nil
}

func (p *parser) wrapError(msg string, ls lexerState) error {
	return ls.error(msg, p.lexer.filename, p.lexer.input)
}
