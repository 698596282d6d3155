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
	"strings"
)

// Token is a lexical category produced by the lexer.
type Token int32

const (
	ERROR Token = iota
	BUILD
	COLON
	DEFAULT
	EQUALS
	IDENT
	INCLUDE
	INDENT
	NEWLINE
	PIPE
	PIPE2
	PIPEAT
	POOL
	RULE
	SUBNINJA
	TEOF
)

// String renders a human-readable form of a token, used in error messages.
func (t Token) String() string {
	switch t {
	case ERROR:
		return "lexing error"
	case BUILD:
		return "'build'"
	case COLON:
		return "':'"
	case DEFAULT:
		return "'default'"
	case EQUALS:
		return "'='"
	case IDENT:
		return "identifier"
	case INCLUDE:
		return "'include'"
	case INDENT:
		return "indent"
	case NEWLINE:
		return "newline"
	case PIPE2:
		return "'||'"
	case PIPE:
		return "'|'"
	case PIPEAT:
		return "'|@'"
	case POOL:
		return "'pool'"
	case RULE:
		return "'rule'"
	case SUBNINJA:
		return "'subninja'"
	case TEOF:
		return "eof"
	}
	return ""
}

// errorHint returns extra context appended to "expected X" messages.
func (t Token) errorHint() string {
	if t == COLON {
		return " ($ also escapes ':')"
	}
	return ""
}

// lexerState captures just enough to reconstruct a line/column for an
// error message printed after parsing has moved on.
type lexerState struct {
	ofs       int
	lastToken int
}

func (l *lexerState) error(message, filename string, input []byte) error {
	line := 1
	lineStart := 0
	for p := 0; p < l.lastToken && p < len(input); p++ {
		if input[p] == '\n' {
			line++
			lineStart = p + 1
		}
	}
	col := 0
	if l.lastToken >= 0 {
		col = l.lastToken - lineStart
	}

	c := ""
	const truncateColumn = 72
	if col > 0 && col < truncateColumn && lineStart < len(input) {
		end := lineStart
		for end < len(input) && end-lineStart < truncateColumn && input[end] != 0 && input[end] != '\n' {
			end++
		}
		truncated := end-lineStart == truncateColumn
		c = string(input[lineStart:end])
		if truncated {
			c += "..."
		}
		c += "\n" + strings.Repeat(" ", col) + "^ near here"
	}
	return fmt.Errorf("%s:%d: %s\n%s", filename, line, message, c)
}

// lexer tokenizes a manifest file's bytes. input must end with a trailing
// NUL byte; callers always go through newLexerInput to get one.
type lexer struct {
	filename string
	input    []byte
	lexerState
}

func newLexerInput(content []byte) []byte {
	if len(content) == 0 || content[len(content)-1] != 0 {
		return append(append([]byte(nil), content...), 0)
	}
	return content
}

func (l *lexer) Error(message string) error {
	return l.lexerState.error(message, l.filename, l.input)
}

// Start begins scanning input, which must already have a trailing NUL
// (see newLexerInput).
func (l *lexer) Start(filename string, input []byte) error {
	if len(input) == 0 || input[len(input)-1] != 0 {
		return fmt.Errorf("manifest: lexer input must have a trailing NUL byte")
	}
	l.filename = filename
	l.input = input
	l.ofs = 0
	l.lastToken = -1
	return nil
}

// DescribeLastError gives more context when the last token read was ERROR.
func (l *lexer) DescribeLastError() string {
	if l.lastToken >= 0 && l.lastToken < len(l.input) && l.input[l.lastToken] == '\t' {
		return "tabs are not allowed, use spaces"
	}
	return "lexing error"
}

// UnreadToken rewinds to the start of the last token read.
func (l *lexer) UnreadToken() {
	l.ofs = l.lastToken
}

func isVarnameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.' || c == '-'
}

func isSimpleVarnameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

func (l *lexer) peekByte() byte {
	if l.ofs >= len(l.input) {
		return 0
	}
	return l.input[l.ofs]
}

// ReadToken scans the next token, skipping comments and, for most token
// kinds, trailing whitespace (so the caller never sees INDENT between two
// tokens on the same logical line unless it follows a NEWLINE).
func (l *lexer) ReadToken() Token {
	for {
		start := l.ofs
		p := l.ofs
		c := l.input[p]

		switch {
		case c == 0:
			l.lastToken = start
			l.ofs = p
			return TEOF

		case c == ' ':
			for p < len(l.input) && l.input[p] == ' ' {
				p++
			}
			if p < len(l.input) && l.input[p] == '#' {
				for p < len(l.input) && l.input[p] != '\n' && l.input[p] != 0 {
					p++
				}
				if p < len(l.input) && l.input[p] == '\n' {
					p++
				}
				l.ofs = p
				continue
			}
			if p < len(l.input) && (l.input[p] == '\n' || (l.input[p] == '\r' && p+1 < len(l.input) && l.input[p+1] == '\n')) {
				if l.input[p] == '\r' {
					p += 2
				} else {
					p++
				}
				l.lastToken = start
				l.ofs = p
				return NEWLINE
			}
			l.lastToken = start
			l.ofs = p
			return INDENT

		case c == '#':
			for p < len(l.input) && l.input[p] != '\n' && l.input[p] != 0 {
				p++
			}
			if p < len(l.input) && l.input[p] == '\n' {
				p++
			}
			l.ofs = p
			continue

		case c == '\r':
			if p+1 < len(l.input) && l.input[p+1] == '\n' {
				l.lastToken = start
				l.ofs = p + 2
				return NEWLINE
			}
			l.lastToken = start
			l.ofs = p + 1
			return ERROR

		case c == '\n':
			l.lastToken = start
			l.ofs = p + 1
			return NEWLINE

		case c == '=':
			l.lastToken = start
			l.ofs = p + 1
			l.eatWhitespace()
			return EQUALS

		case c == ':':
			l.lastToken = start
			l.ofs = p + 1
			l.eatWhitespace()
			return COLON

		case c == '|':
			if p+1 < len(l.input) && l.input[p+1] == '@' {
				l.lastToken = start
				l.ofs = p + 2
				l.eatWhitespace()
				return PIPEAT
			}
			if p+1 < len(l.input) && l.input[p+1] == '|' {
				l.lastToken = start
				l.ofs = p + 2
				l.eatWhitespace()
				return PIPE2
			}
			l.lastToken = start
			l.ofs = p + 1
			l.eatWhitespace()
			return PIPE

		case isVarnameByte(c):
			for p < len(l.input) && isVarnameByte(l.input[p]) {
				p++
			}
			word := string(l.input[start:p])
			l.lastToken = start
			l.ofs = p
			var tok Token
			switch word {
			case "build":
				tok = BUILD
			case "pool":
				tok = POOL
			case "rule":
				tok = RULE
			case "default":
				tok = DEFAULT
			case "include":
				tok = INCLUDE
			case "subninja":
				tok = SUBNINJA
			default:
				tok = IDENT
			}
			l.eatWhitespace()
			return tok

		default:
			l.lastToken = start
			l.ofs = p + 1
			return ERROR
		}
	}
}

// PeekToken reads a token and, if it isn't token, rewinds; returns whether
// it matched.
func (l *lexer) PeekToken(token Token) bool {
	t := l.ReadToken()
	if t == token {
		return true
	}
	l.UnreadToken()
	return false
}

// eatWhitespace skips spaces and line-continuations ("$\n") following a
// token, but never a bare newline: that remains a NEWLINE token.
func (l *lexer) eatWhitespace() {
	for {
		p := l.ofs
		if p >= len(l.input) {
			return
		}
		if l.input[p] == ' ' {
			l.ofs = p + 1
			continue
		}
		if l.input[p] == '$' && p+1 < len(l.input) && l.input[p+1] == '\n' {
			l.ofs = p + 2
			continue
		}
		if l.input[p] == '$' && p+2 < len(l.input) && l.input[p+1] == '\r' && l.input[p+2] == '\n' {
			l.ofs = p + 3
			continue
		}
		return
	}
}

// readIdent reads a rule or variable name; returns "" if none is present
// (leaving ofs unchanged except for lastToken, mirroring the re2c source).
func (l *lexer) readIdent() string {
	start := l.ofs
	p := start
	for p < len(l.input) && isVarnameByte(l.input[p]) {
		p++
	}
	if p == start {
		l.lastToken = start
		return ""
	}
	out := string(l.input[start:p])
	l.lastToken = start
	l.ofs = p
	l.eatWhitespace()
	return out
}

// readEvalString reads a $-escaped string: a path (space/colon/pipe/newline
// terminated) if path is true, or a value (newline terminated, the newline
// consumed) otherwise.
func (l *lexer) readEvalString(path bool) (EvalString, error) {
	var eval EvalString
	p := l.ofs
	for {
		start := p
		if p >= len(l.input) {
			l.lastToken = start
			return EvalString{}, l.Error("unexpected EOF")
		}
		c := l.input[p]
		switch {
		case c == 0:
			l.lastToken = start
			return EvalString{}, l.Error("unexpected EOF")

		case c == '\r':
			if p+1 < len(l.input) && l.input[p+1] == '\n' {
				if !path {
					p += 2
				}
				l.lastToken = start
				l.ofs = p
				if path {
					l.eatWhitespace()
				}
				return eval, nil
			}
			l.lastToken = start
			return EvalString{}, l.Error(l.DescribeLastError())

		case c == '\n' || c == ' ' || c == ':' || c == '|':
			if path {
				l.lastToken = start
				l.ofs = start
				l.eatWhitespace()
				return eval, nil
			}
			if c == '\n' {
				l.lastToken = start
				l.ofs = start + 1
				return eval, nil
			}
			eval.Parsed = appendRaw(eval.Parsed, string(c))
			p++

		case c == '$':
			if p+1 >= len(l.input) {
				l.lastToken = start
				return EvalString{}, l.Error("bad $-escape (literal $ must be written as $$)")
			}
			switch next := l.input[p+1]; {
			case next == '$':
				eval.Parsed = appendRaw(eval.Parsed, "$")
				p += 2
			case next == ' ':
				eval.Parsed = appendRaw(eval.Parsed, " ")
				p += 2
			case next == ':':
				eval.Parsed = appendRaw(eval.Parsed, ":")
				p += 2
			case next == '\n':
				p += 2
				for p < len(l.input) && l.input[p] == ' ' {
					p++
				}
			case next == '\r' && p+2 < len(l.input) && l.input[p+2] == '\n':
				p += 3
				for p < len(l.input) && l.input[p] == ' ' {
					p++
				}
			case next == '{':
				end := p + 2
				for end < len(l.input) && isVarnameByte(l.input[end]) {
					end++
				}
				if end >= len(l.input) || l.input[end] != '}' {
					l.lastToken = start
					return EvalString{}, l.Error("bad $-escape (literal $ must be written as $$)")
				}
				eval.Parsed = append(eval.Parsed, EvalStringToken{Text: string(l.input[p+2 : end]), Special: true})
				p = end + 1
			case isSimpleVarnameByte(next):
				end := p + 1
				for end < len(l.input) && isSimpleVarnameByte(l.input[end]) {
					end++
				}
				eval.Parsed = append(eval.Parsed, EvalStringToken{Text: string(l.input[p+1 : end]), Special: true})
				p = end
			default:
				l.lastToken = start
				return EvalString{}, l.Error("bad $-escape (literal $ must be written as $$)")
			}

		default:
			end := p
			for end < len(l.input) {
				b := l.input[end]
				if b == 0 || b == '$' || b == ' ' || b == ':' || b == '\r' || b == '\n' || b == '|' {
					break
				}
				end++
			}
			eval.Parsed = appendRaw(eval.Parsed, string(l.input[p:end]))
			p = end
		}
	}
}

// appendRaw appends text to the last token if it's already raw, else
// starts a new raw token; this keeps adjacent literal runs merged the way
// the re2c-based lexer's two-pass counting expected.
func appendRaw(parsed []EvalStringToken, text string) []EvalStringToken {
	if n := len(parsed); n > 0 && !parsed[n-1].Special {
		parsed[n-1].Text += text
		return parsed
	}
	return append(parsed, EvalStringToken{Text: text})
}
