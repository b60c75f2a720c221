package matchers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategorySerialization(t *testing.T) {
	category := NewCategory()
	category.Add("$.id", Rule{Kind: Integer})
	category.Add("$.name", Rule{Kind: Regex, Pattern: `\w+`})
	category.Add("$.items", Rule{Kind: MinType, Min: 1})

	encoded, err := json.Marshal(category)
	require.NoError(t, err)

	decoded := NewCategory()
	require.NoError(t, json.Unmarshal(encoded, decoded))

	require.ElementsMatch(t, []string{"$.id", "$.name", "$.items"}, decoded.Paths())

	name := decoded.RulesAt("$.name")
	require.Len(t, name, 1)
	require.Equal(t, Regex, name[0].Kind)
	require.Equal(t, `\w+`, name[0].Pattern)

	items := decoded.RulesAt("$.items")
	require.Equal(t, MinType, items[0].Kind)
	require.Equal(t, 1, items[0].Min)
}

func TestCategoryAcceptsV2SingleRuleForm(t *testing.T) {
	decoded := NewCategory()
	require.NoError(t, json.Unmarshal([]byte(`{"$.ref":{"match":"regex","regex":"\\d+"}}`), decoded))
	rules := decoded.RulesAt("$.ref")
	require.Len(t, rules, 1)
	require.Equal(t, Regex, rules[0].Kind)
	require.Equal(t, `\d+`, rules[0].Pattern)
}

func TestRuleSerializationNames(t *testing.T) {
	tests := []struct {
		rule Rule
		want string
	}{
		{Rule{Kind: Type}, `{"match":"type"}`},
		{Rule{Kind: Integer}, `{"match":"integer"}`},
		{Rule{Kind: Regex, Pattern: `\d+`}, `{"match":"regex","regex":"\\d+"}`},
		{Rule{Kind: MinType, Min: 2}, `{"match":"type","min":2}`},
		{Rule{Kind: Include, Substring: "sub"}, `{"match":"include","value":"sub"}`},
	}
	for _, tc := range tests {
		encoded, err := json.Marshal(tc.rule)
		require.NoError(t, err)
		require.JSONEq(t, tc.want, string(encoded))
	}
}

func TestRuleDeserializationAliases(t *testing.T) {
	// "datetime" and the older "timestamp" name the same rule
	for _, name := range []string{"timestamp", "datetime"} {
		var rule Rule
		require.NoError(t, json.Unmarshal([]byte(`{"match":"`+name+`","format":"yyyy-MM-dd"}`), &rule))
		require.Equal(t, Timestamp, rule.Kind)
		require.Equal(t, "yyyy-MM-dd", rule.Format)
	}
}
