package value

import (
	"strconv"
	"strings"
)

// Path addresses a node in a Value tree using the pact convention,
// e.g. $.items[0].id.
type Path struct {
	tokens []pathToken
}

type pathToken struct {
	key   string
	index int
	isKey bool
}

// RootPath is "$".
func RootPath() Path { return Path{} }

func (p Path) Field(name string) Path {
	tokens := make([]pathToken, len(p.tokens), len(p.tokens)+1)
	copy(tokens, p.tokens)
	return Path{tokens: append(tokens, pathToken{key: name, isKey: true})}
}

func (p Path) Index(i int) Path {
	tokens := make([]pathToken, len(p.tokens), len(p.tokens)+1)
	copy(tokens, p.tokens)
	return Path{tokens: append(tokens, pathToken{index: i})}
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('$')
	for _, tok := range p.tokens {
		if tok.isKey {
			b.WriteByte('.')
			b.WriteString(tok.key)
		} else {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(tok.index))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Tokens returns the path elements as strings: field names as-is and
// indexes in decimal. Used when weighing matching-rule paths against a
// concrete node.
func (p Path) Tokens() []string {
	out := make([]string, 0, len(p.tokens)+1)
	out = append(out, "$")
	for _, tok := range p.tokens {
		if tok.isKey {
			out = append(out, tok.key)
		} else {
			out = append(out, strconv.Itoa(tok.index))
		}
	}
	return out
}
