// Copyright 2025 Tom Barlow
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

package mi

import (
	"fmt"
	"strings"
)

// ParseLine parses one MI output line into a Record. Lines that do not
// match the MI grammar (including the "(gdb)" prompt) come back as
// KindOutput with the raw text preserved; the caller decides whether to log
// or drop them. A malformed payload on an otherwise well-formed record
// degrades to an empty payload rather than failing the line, since the
// reader must never stall on a single bad reply.
func ParseLine(line string) Record {
	line = strings.TrimRight(line, "\r\n")

	token := -1
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) {
		t := 0
		for _, c := range line[:i] {
			t = t*10 + int(c-'0')
		}
		token = t
	} else {
		i = 0
	}

	if i >= len(line) {
		return Record{Kind: KindOutput, Token: -1, Text: line}
	}

	rest := line[i+1:]
	switch line[i] {
	case '^':
		class, payload := splitClassPayload(rest)
		return Record{Kind: KindResult, Token: token, Class: class, Payload: payload}
	case '*', '=':
		class, payload := splitClassPayload(rest)
		return Record{Kind: KindNotify, Token: -1, Class: class, Payload: payload}
	case '~':
		return Record{Kind: KindConsole, Token: -1, Text: decodeStream(rest)}
	case '&':
		return Record{Kind: KindLog, Token: -1, Text: decodeStream(rest)}
	case '@':
		return Record{Kind: KindTarget, Token: -1, Text: decodeStream(rest)}
	default:
		return Record{Kind: KindOutput, Token: -1, Text: line}
	}
}

// splitClassPayload splits "class,var=value,..." into the class name and a
// parsed payload.
func splitClassPayload(s string) (string, Payload) {
	idx := strings.IndexByte(s, ',')
	if idx < 0 {
		return s, nil
	}
	class := s[:idx]
	p := &parser{s: s, pos: idx + 1}
	payload, err := p.results(0)
	if err != nil {
		return class, Payload{}
	}
	return class, payload
}

// decodeStream strips the surrounding quotes of a stream record and decodes
// the C-string escapes.
func decodeStream(s string) string {
	p := &parser{s: s}
	text, err := p.cstring()
	if err != nil {
		return s
	}
	return text
}

// parser is a recursive-descent parser for the MI result grammar:
//
//	results  := result ("," result)*
//	result   := variable "=" value
//	value    := c-string | "{" results? "}" | "[" (value|result)* "]"
type parser struct {
	s   string
	pos int
}

func (p *parser) results(stop byte) (Payload, error) {
	out := Payload{}
	for {
		name, err := p.variable()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		out[name] = val

		if p.pos >= len(p.s) {
			if stop == 0 {
				return out, nil
			}
			return nil, fmt.Errorf("mi: unterminated results at %d", p.pos)
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case stop:
			return out, nil
		default:
			return nil, fmt.Errorf("mi: unexpected %q at %d", p.s[p.pos], p.pos)
		}
	}
}

func (p *parser) variable() (string, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '=' || c == ',' || c == '{' || c == '}' || c == '[' || c == ']' || c == '"' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("mi: empty variable name at %d", p.pos)
	}
	return p.s[start:p.pos], nil
}

func (p *parser) value() (any, error) {
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("mi: missing value at %d", p.pos)
	}
	switch p.s[p.pos] {
	case '"':
		return p.cstring()
	case '{':
		p.pos++
		if p.pos < len(p.s) && p.s[p.pos] == '}' {
			p.pos++
			return Payload{}, nil
		}
		res, err := p.results('}')
		if err != nil {
			return nil, err
		}
		if err := p.expect('}'); err != nil {
			return nil, err
		}
		return res, nil
	case '[':
		return p.list()
	default:
		return nil, fmt.Errorf("mi: unexpected value start %q at %d", p.s[p.pos], p.pos)
	}
}

// list parses a value list. List elements may be plain values or named
// results (e.g. [frame={...},frame={...}]); named elements become
// single-entry payloads so the name is not lost.
func (p *parser) list() ([]any, error) {
	p.pos++ // consume '['
	out := []any{}
	if p.pos < len(p.s) && p.s[p.pos] == ']' {
		p.pos++
		return out, nil
	}
	for {
		var elem any
		var err error
		if p.pos < len(p.s) && (p.s[p.pos] == '"' || p.s[p.pos] == '{' || p.s[p.pos] == '[') {
			elem, err = p.value()
		} else {
			var name string
			name, err = p.variable()
			if err == nil {
				if err = p.expect('='); err == nil {
					var val any
					val, err = p.value()
					elem = Payload{name: val}
				}
			}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, elem)

		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("mi: unterminated list at %d", p.pos)
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("mi: unexpected %q in list at %d", p.s[p.pos], p.pos)
		}
	}
}

func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.s) {
				return "", fmt.Errorf("mi: dangling escape at %d", p.pos)
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteByte(e)
			default:
				// keep unknown escapes verbatim
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("mi: unterminated string at %d", p.pos)
}

func (p *parser) expect(c byte) error {
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return fmt.Errorf("mi: expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}
