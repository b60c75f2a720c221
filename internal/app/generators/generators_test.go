package generators

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/covenant-oss/covenant/internal/app/value"
)

func TestRandomIntStaysInRange(t *testing.T) {
	ctx := NewContext(42)
	gen := Generator{Kind: RandomInt, Min: 10, Max: 20}
	for i := 0; i < 100; i++ {
		out := gen.Generate(ctx, value.NewNull())
		n, err := strconv.Atoi(out.Raw())
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 10)
		require.LessOrEqual(t, n, 20)
	}
}

func TestSeededContextIsDeterministic(t *testing.T) {
	gen := Generator{Kind: RandomString, Size: 12}
	first := gen.Generate(NewContext(7), value.NewNull())
	second := gen.Generate(NewContext(7), value.NewNull())
	require.Equal(t, first.Str(), second.Str())
	require.Len(t, first.Str(), 12)
}

func TestRandomDecimalIsValidNumber(t *testing.T) {
	ctx := NewContext(1)
	gen := Generator{Kind: RandomDecimal, Digits: 8}
	for i := 0; i < 20; i++ {
		out := gen.Generate(ctx, value.NewNull())
		_, err := strconv.ParseFloat(out.Raw(), 64)
		require.NoError(t, err)
	}
}

func TestUUIDGenerator(t *testing.T) {
	out := Generator{Kind: UUID}.Generate(NewContext(1), value.NewNull())
	_, err := uuid.Parse(out.Str())
	require.NoError(t, err)
}

func TestRegexGenerator(t *testing.T) {
	gen := Generator{Kind: Regex, Pattern: `[A-Z]{3}\d{2}`}
	out := gen.Generate(NewContext(3), value.NewNull())
	require.Regexp(t, `^[A-Z]{3}\d{2}$`, out.Str())
}

func TestRegexGeneratorFallsBackOnBadPattern(t *testing.T) {
	gen := Generator{Kind: Regex, Pattern: `([`}
	out := gen.Generate(NewContext(3), value.NewString("fallback"))
	require.Equal(t, "fallback", out.Str())
}

func TestDateTimeGeneratorsUseTheClock(t *testing.T) {
	ctx := NewContext(1)
	ctx.Now = func() time.Time {
		return time.Date(2020, time.May, 17, 10, 30, 0, 0, time.UTC)
	}

	require.Equal(t, "2020-05-17", Generator{Kind: Date}.Generate(ctx, value.NewNull()).Str())
	require.Equal(t, "10:30:00", Generator{Kind: Time}.Generate(ctx, value.NewNull()).Str())
	require.Equal(t, "2020-05-17T10:30:00", Generator{Kind: DateTime}.Generate(ctx, value.NewNull()).Str())
	require.Equal(t, "17/05/2020", Generator{Kind: Date, Format: "dd/MM/yyyy"}.Generate(ctx, value.NewNull()).Str())
}

func TestProviderStateGenerator(t *testing.T) {
	ctx := NewContext(1)
	ctx.ProviderState = map[string]interface{}{"userId": "u-123"}

	out := Generator{Kind: ProviderState, Expression: "${userId}"}.Generate(ctx, value.NewNull())
	require.Equal(t, "u-123", out.Str())

	fallback := Generator{Kind: ProviderState, Expression: "${missing}"}.Generate(ctx, value.NewString("keep"))
	require.Equal(t, "keep", fallback.Str())
}

func TestMockServerURLGenerator(t *testing.T) {
	ctx := NewContext(1)
	ctx.BaseURL = "http://localhost:1234"

	gen := Generator{Kind: MockServerURL, Example: "http://old-host/orders/42", Pattern: `.*(\/orders\/\d+)$`}
	out := gen.Generate(ctx, value.NewNull())
	require.Equal(t, "http://localhost:1234/orders/42", out.Str())
}

func TestGeneratorSerializationRoundTrip(t *testing.T) {
	original := Generator{Kind: RandomInt, Min: 1, Max: 100}
	encoded, err := json.Marshal(original)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"RandomInt","min":1,"max":100}`, string(encoded))

	var decoded Generator
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, original, decoded)
}

func TestGeneratorUnmarshalRejectsUnknownType(t *testing.T) {
	var g Generator
	require.Error(t, json.Unmarshal([]byte(`{"type":"Wibble"}`), &g))
}
