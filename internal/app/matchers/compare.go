package matchers

import (
	"fmt"

	"github.com/covenant-oss/covenant/internal/app/value"
)

// Options controls the default comparison applied where no rule is
// registered. Request bodies reject unexpected keys; response bodies
// tolerate them, since a provider is free to return more than the
// consumer recorded.
type Options struct {
	AllowUnexpectedKeys bool
}

// Compare walks the expected and actual trees together. Nodes covered
// by a rule are judged by that rule (all rules at a path must pass);
// everything else falls back to structural equality. The walk never
// stops at the first failure: every mismatch in the tree is reported.
func Compare(expected, actual value.Value, rules *Category, opts Options) []Mismatch {
	return compareAt(value.RootPath(), expected, actual, rules, opts, false)
}

func compareAt(path value.Path, expected, actual value.Value, rules *Category, opts Options, typeMode bool) []Mismatch {
	if applicable := rules.Lookup(path); len(applicable) > 0 {
		out := MatchAll(applicable, expected, actual, path)
		if governsChildren(applicable) && expected.Kind() == actual.Kind() {
			out = append(out, compareChildren(path, expected, actual, rules, opts)...)
		}
		return out
	}

	if rules.HasWildcardAt(path) && expected.Kind() == actual.Kind() {
		// a rule like $.items[*] governs every child; no length or
		// key-set requirement applies at this level
		return compareChildren(path, expected, actual, rules, opts)
	}

	if typeMode {
		return compareByType(path, expected, actual, rules, opts)
	}
	return compareByEquality(path, expected, actual, rules, opts)
}

// governsChildren reports whether the rules at a node switch its
// children from equality to type-governed comparison.
func governsChildren(rules []Rule) bool {
	for _, rule := range rules {
		switch rule.Kind {
		case Type, MinType, MaxType, MinMaxType, Values:
			return true
		}
	}
	return false
}

func compareByEquality(path value.Path, expected, actual value.Value, rules *Category, opts Options) []Mismatch {
	if expected.Kind() != actual.Kind() {
		return []Mismatch{newMismatch(path, expected, actual,
			fmt.Sprintf("expected %s (%s) but received %s (%s)",
				expected, expected.Kind(), actual, actual.Kind()))}
	}

	switch expected.Kind() {
	case value.Array:
		var out []Mismatch
		if expected.Len() != actual.Len() {
			out = append(out, newMismatch(path, expected, actual,
				fmt.Sprintf("expected a list with %d elements, but got %d", expected.Len(), actual.Len())))
		}
		for i := 0; i < minInt(expected.Len(), actual.Len()); i++ {
			out = append(out, compareAt(path.Index(i), expected.Index(i), actual.Index(i), rules, opts, false)...)
		}
		return out

	case value.Object:
		var out []Mismatch
		for _, key := range expected.Keys() {
			expectedMember, _ := expected.Get(key)
			actualMember, ok := actual.Get(key)
			if !ok {
				out = append(out, newMismatch(path, expected, actual,
					fmt.Sprintf("expected a map containing the key '%s'", key)))
				continue
			}
			out = append(out, compareAt(path.Field(key), expectedMember, actualMember, rules, opts, false)...)
		}
		if !opts.AllowUnexpectedKeys {
			for _, key := range actual.Keys() {
				if _, ok := expected.Get(key); !ok {
					out = append(out, newMismatch(path, expected, actual,
						fmt.Sprintf("received an unexpected key '%s'", key)))
				}
			}
		}
		return out
	}

	return Match(Rule{Kind: Equality}, expected, actual, path)
}

func compareByType(path value.Path, expected, actual value.Value, rules *Category, opts Options) []Mismatch {
	if out := matchType(expected, actual, path); len(out) > 0 {
		return out
	}
	if expected.Kind() == value.Array || expected.Kind() == value.Object {
		return compareChildren(path, expected, actual, rules, opts)
	}
	return nil
}

// compareChildren recurses into a container in type mode. Array items
// beyond the expected length are judged against the first expected
// item, which acts as the template.
func compareChildren(path value.Path, expected, actual value.Value, rules *Category, opts Options) []Mismatch {
	var out []Mismatch
	switch actual.Kind() {
	case value.Array:
		for i := 0; i < actual.Len(); i++ {
			template := expected.Index(0)
			if i < expected.Len() {
				template = expected.Index(i)
			}
			if expected.Len() == 0 {
				break
			}
			out = append(out, compareAt(path.Index(i), template, actual.Index(i), rules, opts, true)...)
		}

	case value.Object:
		for _, key := range expected.Keys() {
			expectedMember, _ := expected.Get(key)
			actualMember, ok := actual.Get(key)
			if !ok {
				out = append(out, newMismatch(path, expected, actual,
					fmt.Sprintf("expected a map containing the key '%s'", key)))
				continue
			}
			out = append(out, compareAt(path.Field(key), expectedMember, actualMember, rules, opts, true)...)
		}
		if !opts.AllowUnexpectedKeys && !rules.HasWildcardAt(path) {
			for _, key := range actual.Keys() {
				if _, ok := expected.Get(key); !ok {
					// under a wildcard or Values rule extra entries are the point
					if hasValuesRule(rules.Lookup(path)) {
						continue
					}
					out = append(out, newMismatch(path, expected, actual,
						fmt.Sprintf("received an unexpected key '%s'", key)))
				}
			}
		}
	}
	return out
}

func hasValuesRule(rules []Rule) bool {
	for _, rule := range rules {
		if rule.Kind == Values {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
