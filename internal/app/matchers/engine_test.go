package matchers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covenant-oss/covenant/internal/app/value"
)

func mustParse(t *testing.T, doc string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func TestEqualityRule(t *testing.T) {
	rule := Rule{Kind: Equality}
	require.Empty(t, Match(rule, value.NewString("a"), value.NewString("a"), value.RootPath()))

	out := Match(rule, value.NewString("a"), value.NewString("b"), value.RootPath())
	require.Len(t, out, 1)
	require.Equal(t, "$", out[0].Path)
}

func TestRegexRuleIsAnchored(t *testing.T) {
	rule := Rule{Kind: Regex, Pattern: `\d+`}
	require.Empty(t, Match(rule, value.NewString("123"), value.NewString("456"), value.RootPath()))
	// a bare \d+ must not match on a substring
	require.NotEmpty(t, Match(rule, value.NewString("123"), value.NewString("abc456def"), value.RootPath()))
}

func TestRegexRuleRejectsBadPattern(t *testing.T) {
	rule := Rule{Kind: Regex, Pattern: `([`}
	out := Match(rule, value.NewString("x"), value.NewString("x"), value.RootPath())
	require.Len(t, out, 1)
	require.Contains(t, out[0].Message, "not a valid regular expression")
}

func TestTypeRule(t *testing.T) {
	rule := Rule{Kind: Type}
	require.Empty(t, Match(rule, value.NewInt(1), value.NewInt(99), value.RootPath()))
	require.Empty(t, Match(rule, value.NewString("a"), value.NewString("zzz"), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewInt(1), value.NewString("1"), value.RootPath()))
}

func TestMinMaxTypeRules(t *testing.T) {
	list := mustParse(t, `[1,2,3]`)
	template := mustParse(t, `[1]`)

	require.Empty(t, Match(Rule{Kind: MinType, Min: 2}, template, list, value.RootPath()))
	require.NotEmpty(t, Match(Rule{Kind: MinType, Min: 4}, template, list, value.RootPath()))
	require.Empty(t, Match(Rule{Kind: MaxType, Max: 3}, template, list, value.RootPath()))
	require.NotEmpty(t, Match(Rule{Kind: MaxType, Max: 2}, template, list, value.RootPath()))
	require.Empty(t, Match(Rule{Kind: MinMaxType, Min: 1, Max: 3}, template, list, value.RootPath()))
	require.NotEmpty(t, Match(Rule{Kind: MinMaxType, Min: 4, Max: 9}, template, list, value.RootPath()))
}

func TestNumberRules(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		actual  value.Value
		matches bool
	}{
		{"number accepts integer", Rule{Kind: Number}, value.NewInt(5), true},
		{"number accepts decimal", Rule{Kind: Number}, value.NewFloat(5.5), true},
		{"number accepts numeric string", Rule{Kind: Number}, value.NewString("5.5"), true},
		{"number rejects word", Rule{Kind: Number}, value.NewString("five"), false},
		{"integer accepts integer", Rule{Kind: Integer}, value.NewInt(5), true},
		{"integer rejects decimal", Rule{Kind: Integer}, value.NewNumber("5.5"), false},
		{"integer accepts integer string", Rule{Kind: Integer}, value.NewString("5"), true},
		{"decimal accepts decimal", Rule{Kind: Decimal}, value.NewNumber("5.5"), true},
		{"decimal rejects integer", Rule{Kind: Decimal}, value.NewNumber("5"), false},
		{"boolean accepts bool", Rule{Kind: Boolean}, value.NewBool(true), true},
		{"boolean accepts bool string", Rule{Kind: Boolean}, value.NewString("false"), true},
		{"boolean rejects other", Rule{Kind: Boolean}, value.NewString("yes"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Match(tc.rule, value.NewNull(), tc.actual, value.RootPath())
			if tc.matches {
				require.Empty(t, out)
			} else {
				require.NotEmpty(t, out)
			}
		})
	}
}

func TestDatetimeRules(t *testing.T) {
	require.Empty(t, Match(Rule{Kind: Date, Format: "yyyy-MM-dd"},
		value.NewNull(), value.NewString("2020-05-17"), value.RootPath()))
	require.NotEmpty(t, Match(Rule{Kind: Date, Format: "yyyy-MM-dd"},
		value.NewNull(), value.NewString("17/05/2020"), value.RootPath()))
	require.Empty(t, Match(Rule{Kind: Time, Format: "HH:mm:ss"},
		value.NewNull(), value.NewString("23:59:00"), value.RootPath()))
	require.Empty(t, Match(Rule{Kind: Timestamp, Format: "yyyy-MM-dd'T'HH:mm:ss"},
		value.NewNull(), value.NewString("2020-05-17T10:00:00"), value.RootPath()))
}

func TestIncludeRule(t *testing.T) {
	rule := Rule{Kind: Include, Substring: "world"}
	require.Empty(t, Match(rule, value.NewNull(), value.NewString("hello world"), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), value.NewString("hello"), value.RootPath()))
}

func TestNotEmptyRule(t *testing.T) {
	rule := Rule{Kind: NotEmpty}
	require.Empty(t, Match(rule, value.NewNull(), value.NewString("x"), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), value.NewString(""), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), value.NewNull(), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), mustParse(t, `[]`), value.RootPath()))
	require.Empty(t, Match(rule, value.NewNull(), mustParse(t, `[1]`), value.RootPath()))
}

func TestSemverRule(t *testing.T) {
	rule := Rule{Kind: Semver}
	require.Empty(t, Match(rule, value.NewNull(), value.NewString("1.2.3"), value.RootPath()))
	require.Empty(t, Match(rule, value.NewNull(), value.NewString("1.2.3-beta.1"), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), value.NewString("1.2"), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), value.NewString("not-a-version"), value.RootPath()))
}

func TestStatusCodeRule(t *testing.T) {
	tests := []struct {
		group   string
		status  int64
		matches bool
	}{
		{"success", 204, true},
		{"success", 404, false},
		{"clientError", 404, true},
		{"serverError", 503, true},
		{"nonError", 301, true},
		{"error", 500, true},
		{"error", 200, false},
	}
	for _, tc := range tests {
		out := Match(Rule{Kind: StatusCode, Status: tc.group},
			value.NewNull(), value.NewInt(tc.status), value.RootPath())
		if tc.matches {
			require.Empty(t, out, "%s/%d", tc.group, tc.status)
		} else {
			require.NotEmpty(t, out, "%s/%d", tc.group, tc.status)
		}
	}
}

func TestArrayContainsFirstMatchWins(t *testing.T) {
	rule := Rule{Kind: ArrayContains, Variants: []Variant{
		{Example: value.NewString("apple")},
		{Example: value.NewInt(3), Rules: []Rule{{Kind: Integer}}},
	}}
	actual := mustParse(t, `["pear","apple",3]`)
	require.Empty(t, Match(rule, value.NewNull(), actual, value.RootPath()))
}

func TestArrayContainsReportsUnmatchedVariants(t *testing.T) {
	rule := Rule{Kind: ArrayContains, Variants: []Variant{
		{Example: value.NewString("missing")},
	}}
	actual := mustParse(t, `["a","b"]`)
	out := Match(rule, value.NewNull(), actual, value.RootPath())
	require.Len(t, out, 1)
	require.Contains(t, out[0].Message, "searched indexes 0..1")
}

func TestEachKeyRule(t *testing.T) {
	rule := Rule{Kind: EachKey, Variants: []Variant{
		{Rules: []Rule{{Kind: Regex, Pattern: `[a-z]+`}}},
	}}
	require.Empty(t, Match(rule, value.NewNull(), mustParse(t, `{"abc":1,"def":2}`), value.RootPath()))

	out := Match(rule, value.NewNull(), mustParse(t, `{"abc":1,"DEF":2,"123":3}`), value.RootPath())
	require.Len(t, out, 2)
}

func TestEachValueRule(t *testing.T) {
	rule := Rule{Kind: EachValue, Variants: []Variant{
		{Rules: []Rule{{Kind: Integer}}},
	}}
	require.Empty(t, Match(rule, value.NewNull(), mustParse(t, `{"a":1,"b":2}`), value.RootPath()))
	require.NotEmpty(t, Match(rule, value.NewNull(), mustParse(t, `{"a":1,"b":"two"}`), value.RootPath()))
}

func TestMatchAllAccumulates(t *testing.T) {
	rules := []Rule{
		{Kind: Regex, Pattern: `\d+`},
		{Kind: Integer},
	}
	out := MatchAll(rules, value.NewNull(), value.NewString("abc"), value.RootPath())
	require.Len(t, out, 2)
}
