package matchers

import (
	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// ValueType is the scalar type detected for the placeholder of a
// matcher definition expression.
type ValueType int

const (
	UnknownType ValueType = iota
	StringType
	NumberType
	IntegerType
	DecimalType
	BooleanType
)

func (t ValueType) String() string {
	switch t {
	case StringType:
		return "string"
	case NumberType:
		return "number"
	case IntegerType:
		return "integer"
	case DecimalType:
		return "decimal"
	case BooleanType:
		return "boolean"
	}
	return "unknown"
}

// Merge resolves the placeholder type when two definitions combine.
// String wins over everything, decimal over integer, and any concrete
// type over unknown.
func (t ValueType) Merge(other ValueType) ValueType {
	if t == other {
		return t
	}
	if t == StringType || other == StringType {
		return StringType
	}
	if t == UnknownType {
		return other
	}
	if other == UnknownType {
		return t
	}
	if t == DecimalType || other == DecimalType {
		return DecimalType
	}
	if t == IntegerType || other == IntegerType {
		return IntegerType
	}
	if t == BooleanType {
		return other
	}
	return t
}

// Definition is the parsed form of a matcher expression: a placeholder
// example, the rules to apply to it and at most one generator. Zero
// rules and no generator means "plain value, compare by equality".
type Definition struct {
	Value     string
	Type      ValueType
	Rules     []Rule
	Generator *generators.Generator
}

// ExampleValue resolves the placeholder literal into a Value of the
// detected type, for embedding as the example body in a pact document.
func (d *Definition) ExampleValue() value.Value {
	switch d.Type {
	case IntegerType, DecimalType, NumberType:
		return value.NewNumber(d.Value)
	case BooleanType:
		return value.NewBool(d.Value == "true")
	default:
		return value.NewString(d.Value)
	}
}

// merge combines two definitions parsed from a comma-separated
// expression. The earlier placeholder and generator win; a duplicated
// placeholder is only worth a warning because there is no reliable way
// to combine the two.
func (d *Definition) merge(other *Definition) {
	if d.Value != "" && other.Value != "" {
		log.Warnf("multiple matching rules define a value for the same element; ignoring the later value '%s'", other.Value)
	}
	if d.Value == "" {
		d.Value = other.Value
	}
	d.Type = d.Type.Merge(other.Type)
	d.Rules = append(d.Rules, other.Rules...)
	if d.Generator == nil {
		d.Generator = other.Generator
	}
}
