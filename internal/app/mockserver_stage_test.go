package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/covenant-oss/covenant/pkg/covenant"
)

type MockServerStage struct {
	t           *testing.T
	assert      *assert.Assertions
	pactName    string
	pact        covenant.PactHandle
	interaction covenant.InteractionHandle
	port        int
	pactDir     string
	responses   []*http.Response
	bodies      [][]byte
	writeCode   int
}

func NewMockServerStage(t *testing.T) (*MockServerStage, *MockServerStage, *MockServerStage) {
	s := &MockServerStage{
		t:        t,
		assert:   assert.New(t),
		pactName: "pact-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
		pactDir:  t.TempDir(),
	}

	s.t.Cleanup(func() {
		if s.port > 0 {
			covenant.CleanupMockServer(s.port)
		}
	})

	return s, s, s
}

func (s *MockServerStage) and() *MockServerStage {
	return s
}

func (s *MockServerStage) a_pact_that_allows_any_user_name() *MockServerStage {
	s.pact = covenant.NewPact("consumer", "provider")
	s.interaction = covenant.NewInteraction(s.pact, s.pactName)
	s.assert.True(covenant.UponReceiving(s.interaction, s.pactName))
	s.assert.True(covenant.WithRequest(s.interaction, "POST", "/users"))
	s.assert.True(covenant.WithHeader(s.interaction, covenant.PartRequest, "Content-Type", "application/json"))
	s.assert.True(covenant.WithBody(s.interaction, covenant.PartRequest, "application/json",
		`{"name": "matching(regex, '\\w+', 'any')"}`))
	s.assert.True(covenant.WithResponseStatus(s.interaction, 200))
	s.assert.True(covenant.WithBody(s.interaction, covenant.PartResponse, "application/json",
		`{"name": "any"}`))
	return s
}

func (s *MockServerStage) a_running_mock_server() *MockServerStage {
	s.port = covenant.CreateMockServerForPact(s.pact, "127.0.0.1:0", false)
	s.assert.Greater(s.port, 0, "mock server should start: %s", covenant.LastError())
	return s
}

func (s *MockServerStage) the_pact_is_frozen() *MockServerStage {
	s.assert.False(covenant.WithResponseStatus(s.interaction, 500))
	return s
}

func (s *MockServerStage) a_request_is_sent_with_name(name string) *MockServerStage {
	payload, err := json.Marshal(map[string]string{"name": name})
	s.assert.NoError(err)

	res, err := http.Post(
		fmt.Sprintf("http://127.0.0.1:%d/users", s.port),
		"application/json",
		bytes.NewReader(payload))
	s.assert.NoError(err)

	body, err := io.ReadAll(res.Body)
	s.assert.NoError(err)
	res.Body.Close()

	s.responses = append(s.responses, res)
	s.bodies = append(s.bodies, body)
	return s
}

func (s *MockServerStage) a_request_is_sent_to_an_unknown_path() *MockServerStage {
	res, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/nowhere", s.port))
	s.assert.NoError(err)
	body, err := io.ReadAll(res.Body)
	s.assert.NoError(err)
	res.Body.Close()

	s.responses = append(s.responses, res)
	s.bodies = append(s.bodies, body)
	return s
}

func (s *MockServerStage) the_response_is(statusCode int) *MockServerStage {
	s.assert.Equal(statusCode, s.responses[len(s.responses)-1].StatusCode)
	return s
}

func (s *MockServerStage) the_response_body_has_name(name string) *MockServerStage {
	var body map[string]string
	s.assert.NoError(json.Unmarshal(s.bodies[len(s.bodies)-1], &body))
	s.assert.Equal(name, body["name"])
	return s
}

func (s *MockServerStage) the_mock_server_reports_a_match() *MockServerStage {
	s.assert.True(covenant.MockServerMatched(s.port))
	s.assert.JSONEq("[]", covenant.MockServerMismatches(s.port))
	return s
}

func (s *MockServerStage) the_mock_server_reports_mismatches() *MockServerStage {
	s.assert.False(covenant.MockServerMatched(s.port))
	s.assert.NotEqual("[]", covenant.MockServerMismatches(s.port))
	return s
}

func (s *MockServerStage) the_pact_file_is_written() *MockServerStage {
	s.writeCode = covenant.WritePactFile(s.port, s.pactDir, true)
	return s
}

func (s *MockServerStage) the_write_succeeds() *MockServerStage {
	s.assert.Equal(0, s.writeCode)

	data, err := os.ReadFile(filepath.Join(s.pactDir, "consumer-provider.json"))
	s.assert.NoError(err)
	s.assert.Contains(string(data), s.pactName)
	return s
}

func (s *MockServerStage) the_mock_server_is_stopped() *MockServerStage {
	s.assert.True(covenant.CleanupMockServer(s.port))
	s.assert.False(covenant.CleanupMockServer(s.port))
	s.port = 0
	return s
}

func TestMockServerMatchesRequest(t *testing.T) {
	given, when, then := NewMockServerStage(t)

	given.
		a_pact_that_allows_any_user_name().and().
		a_running_mock_server()

	when.
		a_request_is_sent_with_name("bob")

	then.
		the_response_is(200).and().
		the_response_body_has_name("any").and().
		the_mock_server_reports_a_match()
}

func TestMockServerReportsUnknownRequests(t *testing.T) {
	given, when, then := NewMockServerStage(t)

	given.
		a_pact_that_allows_any_user_name().and().
		a_running_mock_server()

	when.
		a_request_is_sent_to_an_unknown_path()

	then.
		the_response_is(500).and().
		the_mock_server_reports_mismatches()
}

func TestMockServerFreezesThePact(t *testing.T) {
	given, when, then := NewMockServerStage(t)

	given.
		a_pact_that_allows_any_user_name()

	when.
		a_running_mock_server()

	then.
		the_pact_is_frozen()
}

func TestMockServerWritesPactFile(t *testing.T) {
	given, when, then := NewMockServerStage(t)

	given.
		a_pact_that_allows_any_user_name().and().
		a_running_mock_server()

	when.
		a_request_is_sent_with_name("alice").and().
		the_pact_file_is_written()

	then.
		the_write_succeeds().and().
		the_mock_server_is_stopped()
}
