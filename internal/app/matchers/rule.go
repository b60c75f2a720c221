// Package matchers implements the matching-rule model, the matcher
// expression parser and the rule evaluation engine shared by the mock
// server and the verifier.
package matchers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/covenant-oss/covenant/internal/app/value"
)

// RuleKind enumerates the closed set of matching rule variants. The
// evaluator switches exhaustively over this set, so a new kind is a
// compile-time-visible change.
type RuleKind int

const (
	Equality RuleKind = iota
	Regex
	Type
	MinType
	MaxType
	MinMaxType
	Timestamp
	Time
	Date
	Include
	Number
	Integer
	Decimal
	Boolean
	ContentType
	ArrayContains
	EachKey
	EachValue
	NotEmpty
	Semver
	StatusCode
	Values
)

var kindNames = map[RuleKind]string{
	Equality:      "equality",
	Regex:         "regex",
	Type:          "type",
	MinType:       "type",
	MaxType:       "type",
	MinMaxType:    "type",
	Timestamp:     "datetime",
	Time:          "time",
	Date:          "date",
	Include:       "include",
	Number:        "number",
	Integer:       "integer",
	Decimal:       "decimal",
	Boolean:       "boolean",
	ContentType:   "contentType",
	ArrayContains: "arrayContains",
	EachKey:       "eachKey",
	EachValue:     "eachValue",
	NotEmpty:      "notEmpty",
	Semver:        "semver",
	StatusCode:    "statusCode",
	Values:        "values",
}

func (k RuleKind) String() string { return kindNames[k] }

// Variant is one expected pattern of an ArrayContains rule. Each
// variant is matched independently against the actual array elements
// using its own nested rules.
type Variant struct {
	Example value.Value
	Rules   []Rule
}

// Rule is one matching rule. Only the fields relevant to the Kind are
// set; the zero values of the rest are ignored.
type Rule struct {
	Kind      RuleKind
	Pattern   string // Regex
	Format    string // Timestamp, Time, Date
	Min       int    // MinType, MinMaxType
	Max       int    // MaxType, MinMaxType
	Substring string // Include
	MimeType  string // ContentType
	Status    string // StatusCode group: information, success, redirect, clientError, serverError, nonError, error
	Variants  []Variant
	Rules     []Rule // EachKey, EachValue
	// Reference names a reusable definition instead of an inline rule.
	Reference string
}

// Describe renders the rule for mismatch reports.
func (r Rule) Describe() string {
	switch r.Kind {
	case Regex:
		return fmt.Sprintf("regex '%s'", r.Pattern)
	case Timestamp, Time, Date:
		return fmt.Sprintf("%s '%s'", kindNames[r.Kind], r.Format)
	case MinType:
		return fmt.Sprintf("type with minimum length %d", r.Min)
	case MaxType:
		return fmt.Sprintf("type with maximum length %d", r.Max)
	case MinMaxType:
		return fmt.Sprintf("type with length between %d and %d", r.Min, r.Max)
	case Include:
		return fmt.Sprintf("include '%s'", r.Substring)
	case ContentType:
		return fmt.Sprintf("content type '%s'", r.MimeType)
	case StatusCode:
		return fmt.Sprintf("status code %s", r.Status)
	}
	if r.Reference != "" {
		return fmt.Sprintf("reference to '%s'", r.Reference)
	}
	return kindNames[r.Kind]
}

// MarshalJSON writes the pact-file form of the rule, e.g.
// {"match":"regex","regex":"\\d+"}.
func (r Rule) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{"match": kindNames[r.Kind]}
	switch r.Kind {
	case Regex:
		doc["regex"] = r.Pattern
	case Timestamp, Time, Date:
		doc["format"] = r.Format
	case MinType:
		doc["min"] = r.Min
	case MaxType:
		doc["max"] = r.Max
	case MinMaxType:
		doc["min"] = r.Min
		doc["max"] = r.Max
	case Include:
		doc["value"] = r.Substring
	case ContentType:
		doc["value"] = r.MimeType
	case StatusCode:
		doc["status"] = r.Status
	case ArrayContains:
		variants := make([]interface{}, len(r.Variants))
		for i, variant := range r.Variants {
			rules := make(map[string]interface{})
			if len(variant.Rules) > 0 {
				rules["$"] = map[string]interface{}{"matchers": variant.Rules, "combine": "AND"}
			}
			variants[i] = map[string]interface{}{
				"index": i,
				"value": variant.Example,
				"rules": rules,
			}
		}
		doc["variants"] = variants
	case EachKey, EachValue:
		rules := r.Rules
		if len(rules) == 0 {
			for _, variant := range r.Variants {
				rules = append(rules, variant.Rules...)
			}
		}
		doc["rules"] = rules
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the pact-file form. It accepts both the "datetime"
// and the older "timestamp" spelling.
func (r *Rule) UnmarshalJSON(data []byte) error {
	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unable to parse matching rule")
	}
	parsed, err := ruleFromDocument(doc)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func ruleFromDocument(doc map[string]interface{}) (Rule, error) {
	match, _ := doc["match"].(string)
	str := func(keys ...string) string {
		for _, key := range keys {
			if s, ok := doc[key].(string); ok {
				return s
			}
		}
		return ""
	}
	num := func(key string) (int, bool) {
		f, ok := doc[key].(float64)
		return int(f), ok
	}

	switch match {
	case "equality":
		return Rule{Kind: Equality}, nil
	case "regex":
		return Rule{Kind: Regex, Pattern: str("regex")}, nil
	case "type", "":
		min, hasMin := num("min")
		max, hasMax := num("max")
		switch {
		case hasMin && hasMax:
			return Rule{Kind: MinMaxType, Min: min, Max: max}, nil
		case hasMin:
			return Rule{Kind: MinType, Min: min}, nil
		case hasMax:
			return Rule{Kind: MaxType, Max: max}, nil
		}
		if match == "" {
			// A bare {"regex": ...} is the pacts v2 spelling.
			if pattern := str("regex"); pattern != "" {
				return Rule{Kind: Regex, Pattern: pattern}, nil
			}
		}
		return Rule{Kind: Type}, nil
	case "datetime", "timestamp":
		return Rule{Kind: Timestamp, Format: str("format", "datetime", "timestamp")}, nil
	case "time":
		return Rule{Kind: Time, Format: str("format", "time")}, nil
	case "date":
		return Rule{Kind: Date, Format: str("format", "date")}, nil
	case "include":
		return Rule{Kind: Include, Substring: str("value")}, nil
	case "number":
		return Rule{Kind: Number}, nil
	case "integer":
		return Rule{Kind: Integer}, nil
	case "decimal":
		return Rule{Kind: Decimal}, nil
	case "boolean":
		return Rule{Kind: Boolean}, nil
	case "contentType":
		return Rule{Kind: ContentType, MimeType: str("value")}, nil
	case "notEmpty":
		return Rule{Kind: NotEmpty}, nil
	case "semver":
		return Rule{Kind: Semver}, nil
	case "statusCode":
		return Rule{Kind: StatusCode, Status: str("status")}, nil
	case "values":
		return Rule{Kind: Values}, nil
	case "arrayContains":
		rule := Rule{Kind: ArrayContains}
		variants, _ := doc["variants"].([]interface{})
		for _, raw := range variants {
			variantDoc, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			variant := Variant{Example: value.FromInterface(variantDoc["value"])}
			if rules, ok := variantDoc["rules"].(map[string]interface{}); ok {
				if root, ok := rules["$"].(map[string]interface{}); ok {
					nested, err := rulesFromMatcherList(root)
					if err != nil {
						return rule, err
					}
					variant.Rules = nested
				}
			}
			rule.Variants = append(rule.Variants, variant)
		}
		return rule, nil
	case "eachKey", "eachValue":
		kind := EachKey
		if match == "eachValue" {
			kind = EachValue
		}
		rule := Rule{Kind: kind}
		if list, ok := doc["rules"].([]interface{}); ok {
			for _, raw := range list {
				nestedDoc, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				nested, err := ruleFromDocument(nestedDoc)
				if err != nil {
					return rule, err
				}
				rule.Rules = append(rule.Rules, nested)
			}
		}
		return rule, nil
	}
	return Rule{}, errors.Errorf("unknown matching rule '%s'", match)
}

func rulesFromMatcherList(doc map[string]interface{}) ([]Rule, error) {
	list, _ := doc["matchers"].([]interface{})
	rules := make([]Rule, 0, len(list))
	for _, raw := range list {
		ruleDoc, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		rule, err := ruleFromDocument(ruleDoc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Category holds the rules of one part of an interaction (body, header,
// query, path, status, metadata) keyed by path expression. Path
// expressions follow the pact convention: "$.items[*].id" with '*'
// matching any single element.
type Category struct {
	entries map[string][]Rule
	order   []string
}

func NewCategory() *Category {
	return &Category{entries: map[string][]Rule{}}
}

func (c *Category) Empty() bool { return c == nil || len(c.entries) == 0 }

func (c *Category) Add(path string, rules ...Rule) {
	if _, exists := c.entries[path]; !exists {
		c.order = append(c.order, path)
	}
	c.entries[path] = append(c.entries[path], rules...)
}

// Paths returns the rule paths in insertion order.
func (c *Category) Paths() []string {
	if c == nil {
		return nil
	}
	return c.order
}

func (c *Category) RulesAt(path string) []Rule {
	if c == nil {
		return nil
	}
	return c.entries[path]
}

// Lookup returns every rule whose path expression matches the given
// node. All returned rules apply; the node only matches if each one
// does.
func (c *Category) Lookup(path value.Path) []Rule {
	if c == nil {
		return nil
	}
	tokens := path.Tokens()
	var out []Rule
	for _, expr := range c.order {
		if pathExprMatches(splitPathExpr(expr), tokens) {
			out = append(out, c.entries[expr]...)
		}
	}
	return out
}

// HasWildcardAt reports whether some rule path continues below the
// given node with a '*' element, which switches the node's children to
// type-governed comparison.
func (c *Category) HasWildcardAt(path value.Path) bool {
	if c == nil {
		return false
	}
	tokens := path.Tokens()
	for _, expr := range c.order {
		pattern := splitPathExpr(expr)
		if len(pattern) > len(tokens) && pattern[len(tokens)] == "*" &&
			pathExprMatches(pattern[:len(tokens)], tokens) {
			return true
		}
	}
	return false
}

// splitPathExpr tokenizes "$.a.b[0][*]" into ["$","a","b","0","*"].
func splitPathExpr(expr string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '.', '[':
			flush()
		case ']', '\'', '"':
			// closing brackets and quote marks separate nothing
		default:
			current.WriteByte(expr[i])
		}
	}
	flush()
	return tokens
}

func pathExprMatches(pattern, tokens []string) bool {
	if len(pattern) != len(tokens) {
		return false
	}
	for i := range pattern {
		if pattern[i] != "*" && pattern[i] != tokens[i] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the category as the pact-file matchingRules
// sub-tree: {"$.id": {"matchers": [...], "combine": "AND"}}.
func (c *Category) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(c.order))
	for _, path := range c.order {
		doc[path] = map[string]interface{}{
			"matchers": c.entries[path],
			"combine":  "AND",
		}
	}
	return json.Marshal(doc)
}

func (c *Category) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to parse matching rule category")
	}
	*c = *NewCategory()
	paths := make([]string, 0, len(raw))
	for path := range raw {
		paths = append(paths, path)
	}
	// map iteration order is random; keep the serialized order stable
	sortPaths(paths)
	for _, path := range paths {
		entry := struct {
			Matchers []Rule `json:"matchers"`
		}{}
		if err := json.Unmarshal(raw[path], &entry); err != nil {
			return errors.Wrapf(err, "unable to parse matchers at %q", path)
		}
		if len(entry.Matchers) == 0 {
			// pacts v2 attach a single rule document directly to the path
			var rule Rule
			if err := json.Unmarshal(raw[path], &rule); err != nil {
				return errors.Wrapf(err, "unable to parse matcher at %q", path)
			}
			entry.Matchers = []Rule{rule}
		}
		c.Add(path, entry.Matchers...)
	}
	return nil
}

func sortPaths(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
