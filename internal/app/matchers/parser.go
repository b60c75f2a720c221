package matchers

import (
	"fmt"
	"strings"

	"github.com/covenant-oss/covenant/internal/app/generators"
)

// ParseError reports where a matcher definition expression went wrong.
type ParseError struct {
	Expression string
	Offset     int
	Token      string
	Message    string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("'%s' is not a valid matching rule definition: %s at offset %d", e.Expression, e.Message, e.Offset)
	}
	return fmt.Sprintf("'%s' is not a valid matching rule definition: %s at offset %d (token '%s')", e.Expression, e.Message, e.Offset, e.Token)
}

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkID
	tkString
	tkInt
	tkDecimal
	tkBoolean
	tkNull
	tkLParen
	tkRParen
	tkComma
	tkDollar
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

type parser struct {
	expression string
	pos        int
}

// Parse turns a matcher definition expression such as
// "matching(datetime, 'yyyy-MM-dd', '2000-01-01')" into a Definition.
// The parser is pure: all failures come back as *ParseError values.
func Parse(expression string) (*Definition, error) {
	p := &parser{expression: expression}
	if strings.TrimSpace(expression) == "" {
		return nil, p.failAt(0, "", "expected a matching rule definition, but got an empty string")
	}

	def, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	for {
		next, err := p.next()
		if err != nil {
			return nil, err
		}
		if next.kind == tkEOF {
			return def, nil
		}
		if next.kind != tkComma {
			return nil, p.failToken(next, "expected a comma")
		}
		other, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if def.Generator != nil && other.Generator != nil {
			return nil, p.failAt(next.offset, "", "definition contains conflicting generators")
		}
		def.merge(other)
	}
}

// IsExpression reports whether a string looks like a matcher definition
// rather than a plain literal value.
func IsExpression(s string) bool {
	trimmed := strings.TrimSpace(s)
	for _, prefix := range []string{"matching(", "notEmpty(", "eachKey(", "eachValue(", "atLeast(", "atMost("} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func (p *parser) parseExpression() (*Definition, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.kind != tkID {
		return nil, p.failToken(tok, "expected a type of matching rule (matching, notEmpty, eachKey, eachValue, atLeast, atMost)")
	}
	switch tok.text {
	case "matching":
		return p.parseMatching()
	case "notEmpty":
		val, valType, err := p.parenthesized(p.parsePrimitive)
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: valType, Rules: []Rule{{Kind: NotEmpty}}}, nil
	case "eachKey":
		return p.parseEach(EachKey)
	case "eachValue":
		return p.parseEach(EachValue)
	case "atLeast":
		n, err := p.parseBound()
		if err != nil {
			return nil, err
		}
		return &Definition{Rules: []Rule{{Kind: MinType, Min: n}}}, nil
	case "atMost":
		n, err := p.parseBound()
		if err != nil {
			return nil, err
		}
		return &Definition{Rules: []Rule{{Kind: MaxType, Max: n}}}, nil
	}
	return nil, p.failToken(tok, "expected a type of matching rule (matching, notEmpty, eachKey, eachValue, atLeast, atMost)")
}

func (p *parser) parseEach(kind RuleKind) (*Definition, error) {
	if err := p.expect(tkLParen, "expected '('"); err != nil {
		return nil, err
	}
	inner, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tkRParen, "expected ')'"); err != nil {
		return nil, err
	}
	variant := Variant{Example: inner.ExampleValue(), Rules: inner.Rules}
	return &Definition{Rules: []Rule{{Kind: kind, Variants: []Variant{variant}}}}, nil
}

func (p *parser) parseBound() (int, error) {
	if err := p.expect(tkLParen, "expected '('"); err != nil {
		return 0, err
	}
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	if tok.kind != tkInt || strings.HasPrefix(tok.text, "-") {
		return 0, p.failToken(tok, "expected an unsigned integer")
	}
	n := 0
	for _, c := range tok.text {
		n = n*10 + int(c-'0')
	}
	if err := p.expect(tkRParen, "expected ')'"); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *parser) parseMatching() (*Definition, error) {
	if err := p.expect(tkLParen, "expected '('"); err != nil {
		return nil, err
	}
	def, err := p.parseMatchingRule()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tkRParen, "expected ')'"); err != nil {
		return nil, err
	}
	return def, nil
}

func (p *parser) parseMatchingRule() (*Definition, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.kind == tkDollar {
		name, err := p.parseString()
		if err != nil {
			return nil, err
		}
		return &Definition{Rules: []Rule{{Reference: name}}}, nil
	}
	if tok.kind != tkID {
		return nil, p.failToken(tok, "expected the type of matcher")
	}

	switch tok.text {
	case "equalTo":
		val, valType, err := p.commaPrimitive()
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: valType, Rules: []Rule{{Kind: Equality}}}, nil
	case "type":
		val, valType, err := p.commaPrimitive()
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: valType, Rules: []Rule{{Kind: Type}}}, nil
	case "number":
		val, err := p.commaNumber(true)
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: NumberType, Rules: []Rule{{Kind: Number}}}, nil
	case "integer":
		val, err := p.commaNumber(false)
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: IntegerType, Rules: []Rule{{Kind: Integer}}}, nil
	case "decimal":
		val, err := p.commaNumber(true)
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: DecimalType, Rules: []Rule{{Kind: Decimal}}}, nil
	case "boolean":
		if err := p.expect(tkComma, "expected a comma"); err != nil {
			return nil, err
		}
		val, err := p.next()
		if err != nil {
			return nil, err
		}
		if val.kind != tkBoolean {
			return nil, p.failToken(val, "expected a boolean")
		}
		return &Definition{Value: val.text, Type: BooleanType, Rules: []Rule{{Kind: Boolean}}}, nil
	case "datetime", "date", "time":
		format, err := p.commaString()
		if err != nil {
			return nil, err
		}
		val, err := p.commaString()
		if err != nil {
			return nil, err
		}
		var rule Rule
		var gen generators.Generator
		switch tok.text {
		case "datetime":
			rule = Rule{Kind: Timestamp, Format: format}
			gen = generators.Generator{Kind: generators.DateTime, Format: format}
		case "date":
			rule = Rule{Kind: Date, Format: format}
			gen = generators.Generator{Kind: generators.Date, Format: format}
		case "time":
			rule = Rule{Kind: Time, Format: format}
			gen = generators.Generator{Kind: generators.Time, Format: format}
		}
		return &Definition{Value: val, Type: StringType, Rules: []Rule{rule}, Generator: &gen}, nil
	case "regex":
		pattern, err := p.commaString()
		if err != nil {
			return nil, err
		}
		val, err := p.commaString()
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: StringType, Rules: []Rule{{Kind: Regex, Pattern: pattern}}}, nil
	case "include":
		val, err := p.commaString()
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: StringType, Rules: []Rule{{Kind: Include, Substring: val}}}, nil
	case "semver":
		val, err := p.commaString()
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Type: StringType, Rules: []Rule{{Kind: Semver}}}, nil
	case "contentType":
		mime, err := p.commaString()
		if err != nil {
			return nil, err
		}
		val, err := p.commaString()
		if err != nil {
			return nil, err
		}
		return &Definition{Value: val, Rules: []Rule{{Kind: ContentType, MimeType: mime}}}, nil
	}
	return nil, p.failToken(tok, "expected the type of matcher")
}

func (p *parser) parenthesized(inner func() (string, ValueType, error)) (string, ValueType, error) {
	if err := p.expect(tkLParen, "expected '('"); err != nil {
		return "", UnknownType, err
	}
	val, valType, err := inner()
	if err != nil {
		return "", UnknownType, err
	}
	if err := p.expect(tkRParen, "expected ')'"); err != nil {
		return "", UnknownType, err
	}
	return val, valType, nil
}

func (p *parser) commaPrimitive() (string, ValueType, error) {
	if err := p.expect(tkComma, "expected a comma"); err != nil {
		return "", UnknownType, err
	}
	return p.parsePrimitive()
}

func (p *parser) parsePrimitive() (string, ValueType, error) {
	tok, err := p.next()
	if err != nil {
		return "", UnknownType, err
	}
	switch tok.kind {
	case tkString:
		return tok.text, StringType, nil
	case tkNull:
		return "", StringType, nil
	case tkInt:
		return tok.text, IntegerType, nil
	case tkDecimal:
		return tok.text, DecimalType, nil
	case tkBoolean:
		return tok.text, BooleanType, nil
	}
	return "", UnknownType, p.failToken(tok, "expected a primitive value")
}

func (p *parser) commaNumber(allowDecimal bool) (string, error) {
	if err := p.expect(tkComma, "expected a comma"); err != nil {
		return "", err
	}
	tok, err := p.next()
	if err != nil {
		return "", err
	}
	if tok.kind == tkInt || (allowDecimal && tok.kind == tkDecimal) {
		return tok.text, nil
	}
	if allowDecimal {
		return "", p.failToken(tok, "expected a number")
	}
	return "", p.failToken(tok, "expected an integer")
}

func (p *parser) commaString() (string, error) {
	if err := p.expect(tkComma, "expected a comma"); err != nil {
		return "", err
	}
	return p.parseString()
}

func (p *parser) parseString() (string, error) {
	tok, err := p.next()
	if err != nil {
		return "", err
	}
	if tok.kind == tkString {
		return tok.text, nil
	}
	if tok.kind == tkNull {
		return "", nil
	}
	return "", p.failToken(tok, "expected a quoted string")
}

func (p *parser) expect(kind tokenKind, message string) error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.kind != kind {
		return p.failToken(tok, message)
	}
	return nil
}

func (p *parser) failToken(tok token, message string) *ParseError {
	text := tok.text
	if tok.kind == tkEOF {
		text = "end of expression"
	}
	return p.failAt(tok.offset, text, message)
}

func (p *parser) failAt(offset int, tok, message string) *ParseError {
	return &ParseError{Expression: p.expression, Offset: offset, Token: tok, Message: message}
}

func (p *parser) next() (token, error) {
	for p.pos < len(p.expression) && isSpace(p.expression[p.pos]) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.expression) {
		return token{kind: tkEOF, offset: start}, nil
	}

	c := p.expression[p.pos]
	switch c {
	case '(':
		p.pos++
		return token{kind: tkLParen, text: "(", offset: start}, nil
	case ')':
		p.pos++
		return token{kind: tkRParen, text: ")", offset: start}, nil
	case ',':
		p.pos++
		return token{kind: tkComma, text: ",", offset: start}, nil
	case '$':
		p.pos++
		return token{kind: tkDollar, text: "$", offset: start}, nil
	case '\'':
		return p.lexString()
	}

	if c == '-' || isDigit(c) {
		return p.lexNumber()
	}
	if isLetter(c) {
		for p.pos < len(p.expression) && isLetter(p.expression[p.pos]) {
			p.pos++
		}
		text := p.expression[start:p.pos]
		switch text {
		case "true", "false":
			return token{kind: tkBoolean, text: text, offset: start}, nil
		case "null":
			return token{kind: tkNull, text: text, offset: start}, nil
		}
		return token{kind: tkID, text: text, offset: start}, nil
	}

	return token{}, p.failAt(start, string(c), "unexpected character")
}

// lexString reads a single-quoted string with \' and \\ escapes.
func (p *parser) lexString() (token, error) {
	start := p.pos
	p.pos++
	var text strings.Builder
	for p.pos < len(p.expression) {
		c := p.expression[p.pos]
		if c == '\\' && p.pos+1 < len(p.expression) {
			next := p.expression[p.pos+1]
			if next == '\'' || next == '\\' {
				text.WriteByte(next)
				p.pos += 2
				continue
			}
		}
		if c == '\'' {
			p.pos++
			return token{kind: tkString, text: text.String(), offset: start}, nil
		}
		text.WriteByte(c)
		p.pos++
	}
	return token{}, p.failAt(start, "'", "unterminated string")
}

func (p *parser) lexNumber() (token, error) {
	start := p.pos
	if p.expression[p.pos] == '-' {
		p.pos++
	}
	digits := 0
	for p.pos < len(p.expression) && isDigit(p.expression[p.pos]) {
		p.pos++
		digits++
	}
	if digits == 0 {
		return token{}, p.failAt(start, p.expression[start:p.pos], "expected digits")
	}
	kind := tkInt
	if p.pos < len(p.expression) && p.expression[p.pos] == '.' {
		kind = tkDecimal
		p.pos++
		for p.pos < len(p.expression) && isDigit(p.expression[p.pos]) {
			p.pos++
		}
	}
	return token{kind: kind, text: p.expression[start:p.pos], offset: start}, nil
}

func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
