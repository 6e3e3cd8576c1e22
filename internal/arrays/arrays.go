// Package arrays implements the PostgreSQL text representation of array
// values: "{elem,elem,...}", with double-quoted elements where needed and
// recursive nesting for multi-dimensional arrays. See
// https://www.postgresql.org/docs/current/arrays.html#ARRAYS-IO.
package arrays

import (
	"strings"

	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wirecodes"
)

// Value is one parsed array element: either a NULL, a scalar (Text), or a
// nested array (Elements), mirroring the recursive grammar of the literal
// format itself.
type Value struct {
	Null     bool
	Text     string
	Elements []Value
}

// Decode parses a top-level array literal such as `{1,2,3}` or
// `{{1,2},{3,4}}` into its element tree. The outermost braces are required.
func Decode(literal string) ([]Value, error) {
	literal = strings.TrimSpace(literal)
	if len(literal) < 2 || literal[0] != '{' || literal[len(literal)-1] != '}' {
		return nil, malformedErr("array literal must be enclosed in braces")
	}

	p := &parser{input: literal}
	values, err := p.parseArray()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, malformedErr("unexpected trailing data after array literal")
	}

	return values, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseArray() ([]Value, error) {
	if p.pos >= len(p.input) || p.input[p.pos] != '{' {
		return nil, malformedErr("expected '{'")
	}
	p.pos++

	values := []Value{}

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '}' {
		p.pos++
		return values, nil
	}

	for {
		p.skipSpace()

		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)

		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, malformedErr("unterminated array literal")
		}

		switch p.input[p.pos] {
		case ',':
			p.pos++
			continue
		case '}':
			p.pos++
			return values, nil
		default:
			return nil, malformedErr("expected ',' or '}'")
		}
	}
}

func (p *parser) parseValue() (Value, error) {
	if p.pos >= len(p.input) {
		return Value{}, malformedErr("unexpected end of array literal")
	}

	switch p.input[p.pos] {
	case '{':
		nested, err := p.parseArray()
		if err != nil {
			return Value{}, err
		}
		return Value{Elements: nested}, nil
	case '"':
		return p.parseQuoted()
	default:
		return p.parseUnquoted()
	}
}

func (p *parser) parseQuoted() (Value, error) {
	p.pos++ // opening quote

	var sb strings.Builder
	for {
		if p.pos >= len(p.input) {
			return Value{}, malformedErr("unterminated quoted array element")
		}

		c := p.input[p.pos]
		switch c {
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return Value{}, malformedErr("dangling escape in quoted array element")
			}
			sb.WriteByte(p.input[p.pos])
			p.pos++
		case '"':
			p.pos++
			return Value{Text: sb.String()}, nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
}

func (p *parser) parseUnquoted() (Value, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ',' || c == '}' {
			break
		}
		p.pos++
	}

	raw := p.input[start:p.pos]
	if raw == "" {
		return Value{}, malformedErr("empty unquoted array element")
	}

	if strings.EqualFold(raw, "null") {
		return Value{Null: true}, nil
	}

	return Value{Text: raw}, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

// Encode renders values as a PostgreSQL array literal. Each scalar is
// quoted only when it is empty or contains characters that would otherwise
// be ambiguous (comma, brace, quote, backslash, whitespace, or the literal
// word NULL).
func Encode(values []Value) string {
	var sb strings.Builder
	encodeInto(&sb, values)
	return sb.String()
}

func encodeInto(sb *strings.Builder, values []Value) {
	sb.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}

		switch {
		case v.Null:
			sb.WriteString("NULL")
		case v.Elements != nil:
			encodeInto(sb, v.Elements)
		default:
			sb.WriteString(quoteElement(v.Text))
		}
	}
	sb.WriteByte('}')
}

func quoteElement(text string) string {
	if text != "" && !needsQuoting(text) {
		return text
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '"' || c == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
	return sb.String()
}

func needsQuoting(text string) bool {
	if strings.EqualFold(text, "null") {
		return true
	}

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ',', '{', '}', '"', '\\', ' ', '\t', '\n', '\r', '\v', '\f':
			return true
		}
	}

	return false
}

func malformedErr(message string) error {
	return wireerr.WithSeverity(wireerr.WithCode(&malformedError{message: message}, wirecodes.InvalidParameterValue), wireerr.LevelError)
}

type malformedError struct {
	message string
}

func (e *malformedError) Error() string {
	return "malformed array literal: " + e.message
}
