package covenant

import (
	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/matchers"
)

// DefinitionResult is the outcome of parsing one matcher expression.
// The rule iterator is a one-shot forward cursor: once exhausted it
// stays exhausted, and re-parsing is the only way to restart it.
type DefinitionResult struct {
	err        string
	definition *matchers.Definition
	cursor     int
}

// ParseMatcherDefinition parses an expression like
// "matching(regex, '\\d+', '123')". A failed parse still returns a
// result; inspect Error.
func ParseMatcherDefinition(expression string) *DefinitionResult {
	definition, err := matchers.Parse(expression)
	if err != nil {
		setLastError(err.Error())
		return &DefinitionResult{err: err.Error()}
	}
	return &DefinitionResult{definition: definition}
}

// Error returns the parse error message, or the empty string on
// success.
func (r *DefinitionResult) Error() string { return r.err }

// Value returns the example value of the definition, serialized.
func (r *DefinitionResult) Value() string {
	if r.definition == nil {
		return ""
	}
	return r.definition.Value
}

// ValueType returns the detected type tag of the example value.
func (r *DefinitionResult) ValueType() string {
	if r.definition == nil {
		return matchers.UnknownType.String()
	}
	return r.definition.Type.String()
}

// Generator returns the generator attached to the definition, or nil.
func (r *DefinitionResult) Generator() *generators.Generator {
	if r.definition == nil {
		return nil
	}
	return r.definition.Generator
}

// NextRule advances the cursor and returns the next matching rule, or
// nil when the sequence is exhausted.
func (r *DefinitionResult) NextRule() *matchers.Rule {
	if r.definition == nil || r.cursor >= len(r.definition.Rules) {
		return nil
	}
	rule := r.definition.Rules[r.cursor]
	r.cursor++
	return &rule
}

// RuleCount reports how many rules the definition holds, independent
// of the cursor position.
func (r *DefinitionResult) RuleCount() int {
	if r.definition == nil {
		return 0
	}
	return len(r.definition.Rules)
}
