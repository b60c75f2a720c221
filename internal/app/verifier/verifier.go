// Package verifier replays pact interactions against a live provider
// and reports conformance. Sources are verified concurrently; the
// interactions within one source run in order.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/matchers"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// SourceKind selects how a pact source location is loaded.
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceDir
	SourceURL
)

type Source struct {
	Kind     SourceKind
	Location string
}

// Config is the accumulated verification setup.
type Config struct {
	ProviderName   string
	BaseURL        string
	StateChangeURL string
	Sources        []Source
	Timeout        time.Duration
	Retries        uint
	FilterDesc     string
}

// InteractionResult is one verified interaction. ProviderFault marks a
// connection-level failure, which is reported separately from matching
// mismatches.
type InteractionResult struct {
	Source        string
	Description   string
	ProviderFault bool
	FaultMessage  string
	Mismatches    []matchers.Mismatch
}

func (r InteractionResult) Passed() bool {
	return !r.ProviderFault && len(r.Mismatches) == 0
}

// Report collects results across every source. Append-only; safe for
// the concurrent source workers.
type Report struct {
	mu      sync.Mutex
	Results []InteractionResult
}

func (r *Report) add(result InteractionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, result)
}

// Passed reports overall success: every interaction in every source
// verified clean.
func (r *Report) Passed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, result := range r.Results {
		if !result.Passed() {
			return false
		}
	}
	return true
}

// Summary renders a line per interaction plus a totals line.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	passed := 0
	for _, result := range r.Results {
		switch {
		case result.Passed():
			passed++
			fmt.Fprintf(&b, "PASS %s (%s)\n", result.Description, result.Source)
		case result.ProviderFault:
			fmt.Fprintf(&b, "FAULT %s (%s): %s\n", result.Description, result.Source, result.FaultMessage)
		default:
			fmt.Fprintf(&b, "FAIL %s (%s)\n", result.Description, result.Source)
			for _, m := range result.Mismatches {
				fmt.Fprintf(&b, "  %s at %s: %s\n", m.Type, m.Path, m.Message)
			}
		}
	}
	fmt.Fprintf(&b, "%d interactions, %d passed, %d failed\n",
		len(r.Results), passed, len(r.Results)-passed)
	return b.String()
}

// Execute runs the verification described by cfg and returns the
// report. An error means the run itself could not proceed (bad
// configuration or unloadable source), not that verification failed.
func Execute(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("provider base URL is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("at least one pact source is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}

	pacts, err := loadSources(ctx, cfg)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var wg sync.WaitGroup
	for location, pact := range pacts {
		wg.Add(1)
		go func(location string, pact *pactfile.Pact) {
			defer wg.Done()
			verifyPact(ctx, cfg, location, pact, report)
		}(location, pact)
	}
	wg.Wait()
	return report, nil
}

func loadSources(ctx context.Context, cfg Config) (map[string]*pactfile.Pact, error) {
	pacts := map[string]*pactfile.Pact{}
	for _, source := range cfg.Sources {
		switch source.Kind {
		case SourceFile:
			pact, err := loadFile(source.Location)
			if err != nil {
				return nil, err
			}
			pacts[source.Location] = pact
		case SourceDir:
			entries, err := filepath.Glob(filepath.Join(source.Location, "*.json"))
			if err != nil {
				return nil, errors.Wrapf(err, "unable to list pact directory %s", source.Location)
			}
			if len(entries) == 0 {
				return nil, errors.Errorf("no pact files found in %s", source.Location)
			}
			for _, entry := range entries {
				pact, err := loadFile(entry)
				if err != nil {
					return nil, err
				}
				pacts[entry] = pact
			}
		case SourceURL:
			pact, err := loadURL(ctx, cfg, source.Location)
			if err != nil {
				return nil, err
			}
			pacts[source.Location] = pact
		}
	}
	return pacts, nil
}

func loadFile(path string) (*pactfile.Pact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read pact source %s", path)
	}
	pact, err := pactfile.Load(data)
	if err != nil {
		return nil, errors.Wrapf(err, "pact source %s", path)
	}
	return pact, nil
}

func loadURL(ctx context.Context, cfg Config, location string) (*pactfile.Pact, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	var data []byte
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("pact source %s returned %d", location, resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	}, retry.Attempts(cfg.Retries), retry.Context(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch pact source %s", location)
	}
	pact, err := pactfile.Load(data)
	if err != nil {
		return nil, errors.Wrapf(err, "pact source %s", location)
	}
	return pact, nil
}

func verifyPact(ctx context.Context, cfg Config, location string, pact *pactfile.Pact, report *Report) {
	if cfg.ProviderName != "" && pact.Provider.Name != cfg.ProviderName {
		log.Infof("skipping %s: provider is %q, verifying %q", location, pact.Provider.Name, cfg.ProviderName)
		return
	}

	client := &http.Client{Timeout: cfg.Timeout}
	for _, interaction := range pact.Interactions {
		if cfg.FilterDesc != "" && !strings.Contains(interaction.Description, cfg.FilterDesc) {
			continue
		}
		report.add(verifyInteraction(ctx, cfg, client, location, interaction))
	}
}

func verifyInteraction(ctx context.Context, cfg Config, client *http.Client, location string, interaction *pactfile.Interaction) InteractionResult {
	result := InteractionResult{Source: location, Description: interaction.Description}

	if cfg.StateChangeURL != "" {
		for _, state := range interaction.ProviderStates {
			if err := postProviderState(ctx, cfg, client, state); err != nil {
				result.ProviderFault = true
				result.FaultMessage = fmt.Sprintf("provider state %q: %v", state.Name, err)
				return result
			}
		}
	}

	resp, body, err := callProvider(ctx, cfg, client, interaction.Request)
	if err != nil {
		result.ProviderFault = true
		result.FaultMessage = err.Error()
		return result
	}

	result.Mismatches = matchResponse(interaction.Response, resp, body)
	return result
}

// postProviderState tells the provider to set up the named state
// before the interaction is replayed.
func postProviderState(ctx context.Context, cfg Config, client *http.Client, state pactfile.ProviderState) error {
	payload, err := json.Marshal(map[string]interface{}{
		"state":  state.Name,
		"params": state.Params,
	})
	if err != nil {
		return err
	}
	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.StateChangeURL, bytes.NewReader(payload))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 400 {
			return errors.Errorf("state change endpoint returned %d", resp.StatusCode)
		}
		return nil
	}, retry.Attempts(cfg.Retries), retry.Context(ctx))
}

func callProvider(ctx context.Context, cfg Config, client *http.Client, expected pactfile.Request) (*http.Response, []byte, error) {
	target, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid provider base URL %s", cfg.BaseURL)
	}
	target.Path = expected.Path
	if len(expected.Query) > 0 {
		query := url.Values(expected.Query)
		target.RawQuery = query.Encode()
	}

	var requestBody []byte
	if expected.Body != nil {
		requestBody = []byte(expected.Body.String())
	}

	var resp *http.Response
	var body []byte
	err = retry.Do(func() error {
		var reader io.Reader
		if requestBody != nil {
			reader = bytes.NewReader(requestBody)
		}
		req, err := http.NewRequestWithContext(ctx, expected.Method, target.String(), reader)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		for name, headerValue := range expected.Headers {
			req.Header.Set(name, headerValue)
		}
		if requestBody != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		r, err := client.Do(req)
		if err != nil {
			return err
		}
		defer r.Body.Close()
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, retry.Attempts(cfg.Retries), retry.Context(ctx))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "provider call %s %s failed", expected.Method, target.String())
	}
	return resp, body, nil
}

// matchResponse applies the expected response's rules to what the
// provider actually returned. Unexpected body keys are allowed on
// responses.
func matchResponse(expected pactfile.Response, resp *http.Response, body []byte) []matchers.Mismatch {
	var out []matchers.Mismatch

	out = append(out, matchStatus(expected, resp.StatusCode)...)

	for name, expectedValue := range expected.Headers {
		actualValue := resp.Header.Get(name)
		headerRules := headerRulesFor(expected, name)
		switch {
		case actualValue == "":
			out = append(out, matchers.Mismatch{
				Type:     "HeaderMismatch",
				Path:     "$.headers." + name,
				Expected: expectedValue,
				Message:  fmt.Sprintf("expected header '%s'", name),
			})
		case len(headerRules) > 0:
			mismatches := matchers.MatchAll(headerRules,
				value.NewString(expectedValue), value.NewString(actualValue), value.RootPath().Field(name))
			for i := range mismatches {
				mismatches[i].Type = "HeaderMismatch"
			}
			out = append(out, mismatches...)
		case expectedValue != actualValue:
			out = append(out, matchers.Mismatch{
				Type:     "HeaderMismatch",
				Path:     "$.headers." + name,
				Expected: expectedValue,
				Actual:   actualValue,
				Message:  fmt.Sprintf("expected header '%s' with value '%s' but received '%s'", name, expectedValue, actualValue),
			})
		}
	}

	if expected.Body != nil {
		actual, err := value.Parse(body)
		if err != nil {
			actual = value.NewString(string(body))
		}
		var bodyRules *matchers.Category
		if expected.MatchingRules != nil {
			bodyRules = expected.MatchingRules.Body
		}
		mismatches := matchers.Compare(*expected.Body, actual, bodyRules, matchers.Options{AllowUnexpectedKeys: true})
		for i := range mismatches {
			if mismatches[i].Type == "" {
				mismatches[i].Type = "BodyMismatch"
			}
		}
		out = append(out, mismatches...)
	}
	return out
}

func headerRulesFor(expected pactfile.Response, name string) []matchers.Rule {
	if expected.MatchingRules == nil {
		return nil
	}
	rules := expected.MatchingRules.Header.RulesAt(name)
	if len(rules) == 0 {
		rules = expected.MatchingRules.Header.RulesAt(strings.ToLower(name))
	}
	return rules
}

func matchStatus(expected pactfile.Response, actual int) []matchers.Mismatch {
	var statusRules []matchers.Rule
	if expected.MatchingRules != nil && !expected.MatchingRules.Status.Empty() {
		for _, path := range expected.MatchingRules.Status.Paths() {
			statusRules = append(statusRules, expected.MatchingRules.Status.RulesAt(path)...)
		}
	}
	if len(statusRules) > 0 {
		mismatches := matchers.MatchAll(statusRules,
			value.NewInt(int64(expected.Status)), value.NewInt(int64(actual)), value.RootPath())
		for i := range mismatches {
			mismatches[i].Type = "StatusMismatch"
		}
		return mismatches
	}
	if expected.Status != 0 && expected.Status != actual {
		return []matchers.Mismatch{{
			Type:     "StatusMismatch",
			Path:     "$.status",
			Expected: fmt.Sprintf("%d", expected.Status),
			Actual:   fmt.Sprintf("%d", actual),
			Message:  fmt.Sprintf("expected status %d but received %d", expected.Status, actual),
		}}
	}
	return nil
}
