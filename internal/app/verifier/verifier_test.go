package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const verifierPact = `{
  "consumer": {"name": "web"},
  "provider": {"name": "orders"},
  "interactions": [
    {
      "description": "a request for order 42",
      "providerStates": [{"name": "an order exists", "params": {"id": 42}}],
      "request": {"method": "GET", "path": "/orders/42"},
      "response": {
        "status": 200,
        "body": {"id": 42, "status": "shipped"},
        "matchingRules": {
          "body": {"$.id": {"matchers": [{"match": "integer"}], "combine": "AND"}}
        }
      }
    }
  ],
  "metadata": {"pactSpecification": {"version": "3.0.0"}}
}`

func writePactFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "web-orders.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func providerConfig(t *testing.T, providerURL string, sources ...Source) Config {
	t.Helper()
	parsed, err := url.Parse(providerURL)
	require.NoError(t, err)
	return Config{
		BaseURL: "http://" + parsed.Host,
		Sources: sources,
		Timeout: 5 * time.Second,
		Retries: 1,
	}
}

func TestExecutePassesAgainstConformingProvider(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 99, "status": "shipped", "extra": "allowed"}`))
	}))
	defer provider.Close()

	path := writePactFile(t, verifierPact)
	report, err := Execute(context.Background(), providerConfig(t, provider.URL, Source{Kind: SourceFile, Location: path}))
	require.NoError(t, err)
	require.True(t, report.Passed())
	require.Len(t, report.Results, 1)
}

func TestExecuteReportsMismatches(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "not-an-integer", "status": "lost"}`))
	}))
	defer provider.Close()

	path := writePactFile(t, verifierPact)
	report, err := Execute(context.Background(), providerConfig(t, provider.URL, Source{Kind: SourceFile, Location: path}))
	require.NoError(t, err)
	require.False(t, report.Passed())

	result := report.Results[0]
	require.False(t, result.ProviderFault)
	require.NotEmpty(t, result.Mismatches)
}

func TestExecuteReportsProviderFaultsSeparately(t *testing.T) {
	path := writePactFile(t, verifierPact)
	cfg := Config{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		Sources: []Source{{Kind: SourceFile, Location: path}},
		Timeout: time.Second,
		Retries: 1,
	}

	report, err := Execute(context.Background(), cfg)
	require.NoError(t, err)
	require.False(t, report.Passed())
	require.True(t, report.Results[0].ProviderFault)
	require.Empty(t, report.Results[0].Mismatches)
}

func TestExecuteInvokesStateChangeEndpoint(t *testing.T) {
	var states []map[string]interface{}
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/state" {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			states = append(states, payload)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 42, "status": "shipped"}`))
	}))
	defer provider.Close()

	path := writePactFile(t, verifierPact)
	cfg := providerConfig(t, provider.URL, Source{Kind: SourceFile, Location: path})
	cfg.StateChangeURL = provider.URL + "/state"

	report, err := Execute(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, report.Passed())

	require.Len(t, states, 1)
	require.Equal(t, "an order exists", states[0]["state"])
}

func TestExecuteLoadsDirectoryAndURLSources(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pacts/web-orders.json" {
			w.Write([]byte(verifierPact))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 42, "status": "shipped"}`))
	}))
	defer provider.Close()

	dir := filepath.Dir(writePactFile(t, verifierPact))
	cfg := providerConfig(t, provider.URL,
		Source{Kind: SourceDir, Location: dir},
		Source{Kind: SourceURL, Location: provider.URL + "/pacts/web-orders.json"})

	report, err := Execute(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, report.Passed())
	require.Len(t, report.Results, 2)
}

func TestExecuteSkipsOtherProviders(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 42, "status": "shipped"}`))
	}))
	defer provider.Close()

	path := writePactFile(t, verifierPact)
	cfg := providerConfig(t, provider.URL, Source{Kind: SourceFile, Location: path})
	cfg.ProviderName = "somebody-else"

	report, err := Execute(context.Background(), cfg)
	require.NoError(t, err)
	require.Empty(t, report.Results)
}

func TestVerifyStatusCodes(t *testing.T) {
	require.Equal(t, StatusNullInput, Verify(""))
	require.Equal(t, StatusNullInput, Verify("   \n  "))
	require.Equal(t, StatusInvalidArgs, Verify("--port\nnot-a-number\n--file\nx.json"))
	require.Equal(t, StatusInvalidArgs, Verify("--unknown-flag\nvalue"))
	require.Equal(t, StatusInvalidArgs, Verify("--port\n8080"))
}

func TestVerifyRunsEndToEnd(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 42, "status": "shipped"}`))
	}))
	defer provider.Close()

	parsed, err := url.Parse(provider.URL)
	require.NoError(t, err)
	port := parsed.Port()
	_, err = strconv.Atoi(port)
	require.NoError(t, err)

	path := writePactFile(t, verifierPact)
	args := "--hostname\n" + parsed.Hostname() + "\n--port\n" + port + "\n--file\n" + path
	require.Equal(t, StatusOK, Verify(args))
}

func TestParseArgs(t *testing.T) {
	cfg, err := parseArgs("--provider-name\norders\n--hostname\napi.local\n--port\n9999\n--scheme\nhttps\n--dir\n/tmp/pacts\n--timeout\n10s")
	require.NoError(t, err)
	require.Equal(t, "orders", cfg.ProviderName)
	require.Equal(t, "https://api.local:9999", cfg.BaseURL)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, SourceDir, cfg.Sources[0].Kind)
	require.Equal(t, 10*time.Second, cfg.Timeout)
}
