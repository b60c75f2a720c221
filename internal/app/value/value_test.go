package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePreservesObjectKeyOrder(t *testing.T) {
	v, err := Parse([]byte(`{"zebra":1,"apple":2,"mango":3}`))
	require.NoError(t, err)
	require.Equal(t, []string{"zebra", "apple", "mango"}, v.Keys())
	require.Equal(t, `{"zebra":1,"apple":2,"mango":3}`, v.String())
}

func TestParseKeepsRawNumberLiterals(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		raw     string
		integer bool
	}{
		{"integer", `100`, "100", true},
		{"decimal", `2.5`, "2.5", false},
		{"exponent", `2e3`, "2e3", false},
		{"negative integer", `-7`, "-7", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Parse([]byte(tc.doc))
			require.NoError(t, err)
			require.Equal(t, Number, v.Kind())
			require.Equal(t, tc.raw, v.Raw())
			require.Equal(t, tc.integer, v.IsInteger())
		})
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"unclosed":`))
	require.Error(t, err)
}

func TestEqualIgnoresObjectKeyOrder(t *testing.T) {
	a, err := Parse([]byte(`{"a":1,"b":[true,null]}`))
	require.NoError(t, err)
	b, err := Parse([]byte(`{"b":[true,null],"a":1.0}`))
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestEqualDistinguishesKinds(t *testing.T) {
	require.False(t, NewString("1").Equal(NewInt(1)))
	require.False(t, NewNull().Equal(NewBool(false)))
	require.False(t, NewArray().Equal(NewObject()))
}

func TestRenderRoundTrip(t *testing.T) {
	doc := `{"id":100,"name":"alice","tags":["a","b"],"meta":{"active":true,"score":1.5},"gone":null}`
	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, doc, v.String())
}

func TestInterfaceConversion(t *testing.T) {
	v, err := Parse([]byte(`{"n":2,"items":["x"]}`))
	require.NoError(t, err)
	raw := v.Interface()
	doc, ok := raw.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(2), doc["n"])
	require.Equal(t, []interface{}{"x"}, doc["items"])
}

func TestPathRendering(t *testing.T) {
	p := RootPath().Field("items").Index(0).Field("id")
	require.Equal(t, "$.items[0].id", p.String())
	require.Equal(t, []string{"$", "items", "0", "id"}, p.Tokens())
}
