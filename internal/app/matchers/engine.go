package matchers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/covenant-oss/covenant/internal/app/datetime"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// Mismatch is the negative outcome of applying a rule at a path. It is
// a value, not an error: matching reports every mismatch it finds in a
// single pass.
type Mismatch struct {
	Type     string `json:"type,omitempty"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"mismatch"`
}

func newMismatch(path value.Path, expected, actual value.Value, message string) Mismatch {
	return Mismatch{
		Path:     path.String(),
		Expected: expected.String(),
		Actual:   actual.String(),
		Message:  message,
	}
}

// Match applies a single rule to an actual value at a path. An empty
// result means the rule matched. Rules over containers recurse and
// accumulate every failing member instead of stopping at the first.
func Match(rule Rule, expected, actual value.Value, path value.Path) []Mismatch {
	switch rule.Kind {
	case Equality:
		if !expected.Equal(actual) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to equal %s", actual, expected))}
		}
		return nil

	case Regex:
		re, err := regexp.Compile(anchored(rule.Pattern))
		if err != nil {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("'%s' is not a valid regular expression: %v", rule.Pattern, err))}
		}
		if !re.MatchString(stringify(actual)) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to match regex '%s'", actual, rule.Pattern))}
		}
		return nil

	case Type:
		return matchType(expected, actual, path)

	case MinType:
		out := matchType(expected, actual, path)
		if actual.Kind() == value.Array && actual.Len() < rule.Min {
			out = append(out, newMismatch(path, expected, actual,
				fmt.Sprintf("expected a list with at least %d elements, but got %d", rule.Min, actual.Len())))
		}
		return out

	case MaxType:
		out := matchType(expected, actual, path)
		if actual.Kind() == value.Array && actual.Len() > rule.Max {
			out = append(out, newMismatch(path, expected, actual,
				fmt.Sprintf("expected a list with at most %d elements, but got %d", rule.Max, actual.Len())))
		}
		return out

	case MinMaxType:
		out := matchType(expected, actual, path)
		if actual.Kind() == value.Array && (actual.Len() < rule.Min || actual.Len() > rule.Max) {
			out = append(out, newMismatch(path, expected, actual,
				fmt.Sprintf("expected a list with %d to %d elements, but got %d", rule.Min, rule.Max, actual.Len())))
		}
		return out

	case Timestamp, Time, Date:
		format := rule.Format
		if format == "" {
			switch rule.Kind {
			case Timestamp:
				format = datetime.DefaultDateTimeFormat
			case Time:
				format = datetime.DefaultTimeFormat
			case Date:
				format = datetime.DefaultDateFormat
			}
		}
		if _, err := datetime.Parse(format, stringify(actual)); err != nil {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to match the %s format '%s'", actual, kindNames[rule.Kind], format))}
		}
		return nil

	case Number:
		if actual.Kind() != value.Number && !numericString(actual) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to be a number", actual))}
		}
		return nil

	case Integer:
		if !(actual.IsInteger() || integerString(actual)) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to be an integer", actual))}
		}
		return nil

	case Decimal:
		if !((actual.Kind() == value.Number && !actual.IsInteger()) || decimalString(actual)) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to be a decimal number", actual))}
		}
		return nil

	case Boolean:
		if actual.Kind() == value.Bool {
			return nil
		}
		if actual.Kind() == value.String && (actual.Str() == "true" || actual.Str() == "false") {
			return nil
		}
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("expected %s to be a boolean", actual))}

	case Include:
		if !strings.Contains(stringify(actual), rule.Substring) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected %s to include '%s'", actual, rule.Substring))}
		}
		return nil

	case ContentType:
		detected := http.DetectContentType([]byte(stringify(actual)))
		if !strings.HasPrefix(detected, rule.MimeType) {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected a body with content type '%s', but detected '%s'", rule.MimeType, detected))}
		}
		return nil

	case NotEmpty:
		if isEmpty(actual) {
			return []Mismatch{newMismatch(path, expected, actual, "expected a non-empty value")}
		}
		return nil

	case Semver:
		if _, err := semver.StrictNewVersion(stringify(actual)); err != nil {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("'%s' is not a valid semantic version", stringify(actual)))}
		}
		return nil

	case StatusCode:
		return matchStatus(rule.Status, expected, actual, path)

	case ArrayContains:
		return matchArrayContains(rule, expected, actual, path)

	case EachKey:
		return matchEachMember(rule, expected, actual, path, true)

	case EachValue:
		return matchEachMember(rule, expected, actual, path, false)

	case Values:
		if actual.Kind() != value.Object {
			return []Mismatch{newMismatch(path, expected, actual,
				fmt.Sprintf("expected a map, but got %s", actual.Kind()))}
		}
		return nil
	}

	if rule.Reference != "" {
		// References are resolved by the caller against named definitions;
		// an unresolved one reaching the engine is a configuration problem.
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("unresolved matching rule reference '%s'", rule.Reference))}
	}
	return []Mismatch{newMismatch(path, expected, actual, "unknown matching rule")}
}

// MatchAll applies every rule; the value matches only if all do.
func MatchAll(rules []Rule, expected, actual value.Value, path value.Path) []Mismatch {
	var out []Mismatch
	for _, rule := range rules {
		out = append(out, Match(rule, expected, actual, path)...)
	}
	return out
}

func matchType(expected, actual value.Value, path value.Path) []Mismatch {
	if expected.Kind() != actual.Kind() {
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("expected %s (%s) to be the same type as %s (%s)",
				actual, actual.Kind(), expected, expected.Kind()))}
	}
	return nil
}

func matchStatus(group string, expected, actual value.Value, path value.Path) []Mismatch {
	status := int(actual.Float())
	ok := false
	switch group {
	case "information":
		ok = status >= 100 && status < 200
	case "success":
		ok = status >= 200 && status < 300
	case "redirect":
		ok = status >= 300 && status < 400
	case "clientError":
		ok = status >= 400 && status < 500
	case "serverError":
		ok = status >= 500 && status < 600
	case "nonError":
		ok = status < 400
	case "error":
		ok = status >= 400
	}
	if !ok {
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("expected status code %d to be a %s response", status, group))}
	}
	return nil
}

// matchArrayContains requires every expected variant to match at least
// one element of the actual array, independently and in any order. The
// first matching element wins; unmatched variants report the searched
// index range.
func matchArrayContains(rule Rule, expected, actual value.Value, path value.Path) []Mismatch {
	if actual.Kind() != value.Array {
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("expected a list, but got %s", actual.Kind()))}
	}
	var out []Mismatch
	for i, variant := range rule.Variants {
		found := false
		for j := 0; j < actual.Len(); j++ {
			if len(variantMismatches(variant, actual.Index(j), path.Index(j))) == 0 {
				found = true
				break
			}
		}
		if !found {
			out = append(out, newMismatch(path, variant.Example, actual,
				fmt.Sprintf("variant %d (%s) was not found in the list (searched indexes 0..%d)",
					i, variant.Example, actual.Len()-1)))
		}
	}
	return out
}

func variantMismatches(variant Variant, item value.Value, path value.Path) []Mismatch {
	if len(variant.Rules) == 0 {
		return Match(Rule{Kind: Equality}, variant.Example, item, path)
	}
	return MatchAll(variant.Rules, variant.Example, item, path)
}

// matchEachMember applies the nested rules to every key (or value) of
// an actual object. Failing members accumulate; they do not
// short-circuit the rest of the object.
func matchEachMember(rule Rule, expected, actual value.Value, path value.Path, keys bool) []Mismatch {
	if actual.Kind() != value.Object {
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("expected a map, but got %s", actual.Kind()))}
	}
	var out []Mismatch
	for _, key := range actual.Keys() {
		member, _ := actual.Get(key)
		target := member
		memberPath := path.Field(key)
		if keys {
			target = value.NewString(key)
		}
		for _, variant := range rule.Variants {
			out = append(out, MatchAll(variant.Rules, variantExpected(variant, expected, key, target), target, memberPath)...)
		}
		if len(rule.Variants) == 0 {
			out = append(out, MatchAll(rule.Rules, expectedMember(expected, key, target), target, memberPath)...)
		}
	}
	return out
}

// variantExpected picks the best example for a nested rule: the
// variant's own example if it has one, otherwise the expected member.
func variantExpected(variant Variant, expected value.Value, key string, target value.Value) value.Value {
	if !variant.Example.IsNull() {
		return variant.Example
	}
	return expectedMember(expected, key, target)
}

func expectedMember(expected value.Value, key string, target value.Value) value.Value {
	if expected.Kind() == value.Object {
		if member, ok := expected.Get(key); ok {
			return member
		}
		if len(expected.Keys()) > 0 {
			member, _ := expected.Get(expected.Keys()[0])
			return member
		}
	}
	return target
}

func anchored(pattern string) string {
	return "^(?:" + strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$") + ")$"
}

// stringify renders the value the way it would appear on the wire:
// strings bare, everything else as JSON.
func stringify(v value.Value) string {
	if v.Kind() == value.String {
		return v.Str()
	}
	return v.String()
}

func numericString(v value.Value) bool {
	if v.Kind() != value.String {
		return false
	}
	_, err := strconv.ParseFloat(v.Str(), 64)
	return err == nil
}

func integerString(v value.Value) bool {
	if v.Kind() != value.String {
		return false
	}
	_, err := strconv.ParseInt(v.Str(), 10, 64)
	return err == nil
}

func decimalString(v value.Value) bool {
	if v.Kind() != value.String || !strings.Contains(v.Str(), ".") {
		return false
	}
	_, err := strconv.ParseFloat(v.Str(), 64)
	return err == nil
}

func isEmpty(v value.Value) bool {
	switch v.Kind() {
	case value.Null:
		return true
	case value.String, value.Array, value.Object:
		return v.Len() == 0
	}
	return false
}
