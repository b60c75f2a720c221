package covenant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/matchers"
)

func interactionFor(t *testing.T, handle InteractionHandle) *interactionObject {
	t.Helper()
	object, ok := registry.Get(uint32(handle))
	require.True(t, ok)
	i, ok := object.(*interactionObject)
	require.True(t, ok)
	return i
}

func TestNewPactAndInteraction(t *testing.T) {
	pact := NewPact("web", "orders")
	require.NotZero(t, pact)

	interaction := NewInteraction(pact, "a request for orders")
	require.NotZero(t, interaction)

	require.True(t, Given(interaction, "orders exist"))
	require.True(t, GivenWithParam(interaction, "orders exist", "count", "3"))
	require.True(t, UponReceiving(interaction, "a request for all orders"))
	require.True(t, WithRequest(interaction, "GET", "/orders"))
	require.True(t, WithResponseStatus(interaction, 200))

	i := interactionFor(t, interaction)
	require.Equal(t, "a request for all orders", i.interaction.Description)
	require.Equal(t, "GET", i.interaction.Request.Method)
	require.Equal(t, "/orders", i.interaction.Request.Path)
	require.Equal(t, 200, i.interaction.Response.Status)
	require.Len(t, i.interaction.ProviderStates, 1)
	require.Equal(t, "3", i.interaction.ProviderStates[0].Params["count"])

	require.True(t, ReleasePact(pact))
}

func TestMutatorsRefuseUnknownHandles(t *testing.T) {
	require.False(t, Given(InteractionHandle(999999), "anything"))
	require.NotEmpty(t, LastError())

	require.Zero(t, NewInteraction(PactHandle(999999), "nope"))
}

func TestWithRequestParsesPathExpression(t *testing.T) {
	pact := NewPact("web", "orders")
	interaction := NewInteraction(pact, "order by id")
	defer ReleasePact(pact)

	require.True(t, WithRequest(interaction, "GET", `matching(regex, '\/orders\/\d+', '/orders/42')`))

	i := interactionFor(t, interaction)
	require.Equal(t, "/orders/42", i.interaction.Request.Path)

	rules := i.interaction.Request.MatchingRules.Path.RulesAt("$")
	require.Len(t, rules, 1)
	require.Equal(t, matchers.Regex, rules[0].Kind)
}

func TestWithQueryParamAndHeaderExpressions(t *testing.T) {
	pact := NewPact("web", "orders")
	interaction := NewInteraction(pact, "search")
	defer ReleasePact(pact)

	require.True(t, WithQueryParam(interaction, "page", "matching(integer, 2)"))
	require.True(t, WithHeader(interaction, PartRequest, "Accept", "application/json"))
	require.True(t, WithHeader(interaction, PartResponse, "X-Request-Id", `matching(regex, '\w+', 'abc123')`))

	i := interactionFor(t, interaction)
	require.Equal(t, []string{"2"}, i.interaction.Request.Query["page"])
	require.Len(t, i.interaction.Request.MatchingRules.Query.RulesAt("page"), 1)

	require.Equal(t, "application/json", i.interaction.Request.Headers["Accept"])
	require.Nil(t, i.interaction.Request.MatchingRules.Header)

	require.Equal(t, "abc123", i.interaction.Response.Headers["X-Request-Id"])
	require.Len(t, i.interaction.Response.MatchingRules.Header.RulesAt("X-Request-Id"), 1)
}

func TestWithBodySubstitutesExpressions(t *testing.T) {
	pact := NewPact("web", "orders")
	interaction := NewInteraction(pact, "create order")
	defer ReleasePact(pact)

	body := `{
		"name": "matching(type, 'sample')",
		"id": "matching(integer, 7)",
		"created": "matching(date, 'yyyy-MM-dd', '2024-01-15')",
		"tags": ["matching(regex, '\\w+', 'new')"]
	}`
	require.True(t, WithBody(interaction, PartRequest, "application/json", body))

	i := interactionFor(t, interaction)
	require.Equal(t, "application/json", i.interaction.Request.Headers["Content-Type"])

	rendered := i.interaction.Request.Body.String()
	require.JSONEq(t, `{"name":"sample","id":7,"created":"2024-01-15","tags":["new"]}`, rendered)

	rules := i.interaction.Request.MatchingRules.Body
	require.Len(t, rules.RulesAt("$.name"), 1)
	require.Len(t, rules.RulesAt("$.id"), 1)
	require.Len(t, rules.RulesAt("$.tags[0]"), 1)

	gen, ok := i.interaction.Request.Generators.Body["$.created"]
	require.True(t, ok)
	require.Equal(t, generators.Date, gen.Kind)
}

func TestWithBodyKeepsNonJSONVerbatim(t *testing.T) {
	pact := NewPact("web", "orders")
	interaction := NewInteraction(pact, "plain text")
	defer ReleasePact(pact)

	require.True(t, WithBody(interaction, PartResponse, "text/plain", "just some text"))

	i := interactionFor(t, interaction)
	require.Equal(t, `"just some text"`, i.interaction.Response.Body.String())
	require.Nil(t, i.interaction.Response.MatchingRules)
}

func TestMockServerFreezesThePact(t *testing.T) {
	pact := NewPact("web", "orders")
	interaction := NewInteraction(pact, "a request")
	require.True(t, WithRequest(interaction, "GET", "/orders"))
	require.True(t, WithResponseStatus(interaction, 200))

	port := CreateMockServerForPact(pact, "127.0.0.1:0", false)
	require.Greater(t, port, 0)
	defer CleanupMockServer(port)

	require.False(t, WithResponseStatus(interaction, 500))
	require.Zero(t, NewInteraction(pact, "too late"))
	require.Contains(t, LastError(), "frozen")
}

func TestCreateMockServerErrorCodes(t *testing.T) {
	require.Equal(t, ErrCodeNullInput, CreateMockServer("", "127.0.0.1:0", false))
	require.Equal(t, ErrCodeInvalidPact, CreateMockServer(`{"not":"a pact"}`, "127.0.0.1:0", false))
	require.Equal(t, ErrCodeInvalidAddr, CreateMockServer(orderPactJSON, "no-port", false))
	require.Equal(t, ErrCodeNullInput, CreateMockServerForPact(PactHandle(999999), "127.0.0.1:0", false))
}

const orderPactJSON = `{
  "consumer": {"name": "web"},
  "provider": {"name": "orders"},
  "interactions": [
    {
      "description": "a request for orders",
      "request": {"method": "GET", "path": "/orders"},
      "response": {"status": 200}
    }
  ],
  "metadata": {"pactSpecification": {"version": "3.0.0"}}
}`

func TestMockServerLifecycleAndWrite(t *testing.T) {
	port := CreateMockServer(orderPactJSON, "127.0.0.1:0", false)
	require.Greater(t, port, 0)

	require.False(t, MockServerMatched(port))
	require.NotEmpty(t, MockServerMismatches(port))

	dir := t.TempDir()
	require.Equal(t, 0, WritePactFile(port, dir, true))
	_, err := os.Stat(filepath.Join(dir, "web-orders.json"))
	require.NoError(t, err)

	require.True(t, CleanupMockServer(port))
	require.False(t, CleanupMockServer(port))
	require.Equal(t, 2, WritePactFile(port, dir, true))
}

func TestReleasePactDropsInteractions(t *testing.T) {
	pact := NewPact("web", "orders")
	interaction := NewInteraction(pact, "a request")
	require.True(t, ReleasePact(pact))

	require.False(t, Given(interaction, "anything"))
	require.False(t, ReleasePact(pact))
}
