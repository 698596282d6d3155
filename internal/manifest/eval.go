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

// Package manifest parses the Ninja-family build manifest grammar into a
// RawManifest: rules, pools, build statements and their bindings, still
// holding $-escaped strings unevaluated. internal/buildgraph compiles a
// RawManifest into the step graph the build engine runs against.
package manifest

// Scope resolves a variable name to its value. BindingEnv implements it,
// as does the parser's edgeScope, and Evaluate takes the interface so a build edge's
// per-edge scope and the file-level scope look the same to EvalString.
type Scope interface {
	LookupVariable(name string) string
}

// EvalStringToken is one piece of a tokenized $-escaped string: either raw
// text or a variable reference to be looked up in a Scope at evaluation
// time.
type EvalStringToken struct {
	Text    string
	Special bool
}

// EvalString is a tokenized string that contains variable references, kept
// unevaluated until a Scope is available (spec §1: "rule-body bindings are
// late-bound").
type EvalString struct {
	Parsed []EvalStringToken
}

// Evaluate expands every variable reference against env.
func (e EvalString) Evaluate(env Scope) string {
	if len(e.Parsed) == 1 && !e.Parsed[0].Special {
		return e.Parsed[0].Text
	}
	var buf []byte
	for _, tok := range e.Parsed {
		if tok.Special {
			buf = append(buf, env.LookupVariable(tok.Text)...)
		} else {
			buf = append(buf, tok.Text...)
		}
	}
	return string(buf)
}

// Unparse renders the token list back to its $-escaped source form, used
// when re-serializing a regenerated manifest fragment for diagnostics.
func (e EvalString) Unparse() string {
	var buf []byte
	for _, tok := range e.Parsed {
		if tok.Special {
			buf = append(buf, '$', '{')
			buf = append(buf, tok.Text...)
			buf = append(buf, '}')
		} else {
			buf = append(buf, tok.Text...)
		}
	}
	return string(buf)
}

// reservedBindings are the rule-level keys the manifest grammar itself
// interprets; anything else on a rule is a parse error (spec §1's
// "Manifest format").
var reservedBindings = map[string]bool{
	"command":          true,
	"depfile":          true,
	"dyndep":           true,
	"description":      true,
	"deps":             true,
	"generator":        true,
	"pool":              true,
	"restat":           true,
	"rspfile":          true,
	"rspfile_content":  true,
	"msvc_deps_prefix": true,
}

// IsReservedBinding reports whether key is one of the rule bindings the
// grammar understands natively.
func IsReservedBinding(key string) bool {
	return reservedBindings[key]
}

// Rule is a named, reusable command template; a build statement names one
// and supplies the path lists it applies to.
type Rule struct {
	Name     string
	Bindings map[string]EvalString
}

// NewRule returns an empty rule named name.
func NewRule(name string) *Rule {
	return &Rule{Name: name, Bindings: map[string]EvalString{}}
}

// Binding returns rule's binding for key and whether it was set.
func (r *Rule) Binding(key string) (EvalString, bool) {
	v, ok := r.Bindings[key]
	return v, ok
}

// BindingEnv is a lexical scope: a set of already-evaluated string
// bindings, a set of rules visible in this scope, and a parent to fall
// back to. The file-level env has no parent; an edge-level env's parent is
// the file (or subninja) scope it was declared in.
type BindingEnv struct {
	Bindings map[string]string
	Rules    map[string]*Rule
	Parent   *BindingEnv
}

// NewBindingEnv returns a scope chained to parent (nil for the top level).
func NewBindingEnv(parent *BindingEnv) *BindingEnv {
	return &BindingEnv{
		Bindings: map[string]string{},
		Rules:    map[string]*Rule{},
		Parent:   parent,
	}
}

// LookupVariable implements Scope, walking up the parent chain.
func (b *BindingEnv) LookupVariable(name string) string {
	if v, ok := b.Bindings[name]; ok {
		return v
	}
	if b.Parent != nil {
		return b.Parent.LookupVariable(name)
	}
	return ""
}

// LookupRuleCurrentScope looks up name only in b, not its ancestors.
func (b *BindingEnv) LookupRuleCurrentScope(name string) *Rule {
	return b.Rules[name]
}

// LookupRule looks up name in b and, failing that, its ancestors.
func (b *BindingEnv) LookupRule(name string) *Rule {
	if r, ok := b.Rules[name]; ok {
		return r
	}
	if b.Parent != nil {
		return b.Parent.LookupRule(name)
	}
	return nil
}

// AddRule registers rule in b's own scope.
func (b *BindingEnv) AddRule(rule *Rule) {
	b.Rules[rule.Name] = rule
}
