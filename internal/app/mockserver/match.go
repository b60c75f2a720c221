// Package mockserver replays recorded interactions during consumer
// tests. Each inbound request is matched against the pact's
// interactions with the rule engine, and every outcome is recorded so
// the test can ask afterwards whether the contract was exercised.
package mockserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/covenant-oss/covenant/internal/app/matchers"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// Outcome types, mirroring the shape pact tooling expects when it
// renders mismatch reports.
const (
	outcomeMatch    = "request-match"
	outcomeMismatch = "request-mismatch"
	outcomeNotFound = "request-not-found"
	outcomeMissing  = "missing-request"
)

// requestDocument is the decoded inbound request.
type requestDocument struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// asDocument renders the request as a generic document for diagnostic
// path lookups.
func (r requestDocument) asDocument() map[string]interface{} {
	query := make(map[string]interface{}, len(r.Query))
	for name, values := range r.Query {
		if len(values) == 1 {
			query[name] = values[0]
		} else {
			query[name] = values
		}
	}
	doc := map[string]interface{}{
		"method": r.Method,
		"path":   r.Path,
		"query":  query,
	}
	if body, err := value.Parse(r.Body); err == nil && len(r.Body) > 0 {
		doc["body"] = body.Interface()
	} else if len(r.Body) > 0 {
		doc["body"] = string(r.Body)
	}
	return doc
}

// Outcome is one recorded match result.
type Outcome struct {
	Type        string
	Interaction string
	Method      string
	Path        string
	Note        string
	Mismatches  []matchers.Mismatch
}

// Document renders the outcome the way mismatch reports are consumed.
func (o Outcome) Document() map[string]interface{} {
	doc := map[string]interface{}{
		"type":   o.Type,
		"method": o.Method,
		"path":   o.Path,
	}
	if o.Interaction != "" {
		doc["interaction"] = o.Interaction
	}
	if o.Note != "" {
		doc["note"] = o.Note
	}
	if len(o.Mismatches) > 0 {
		doc["mismatches"] = o.Mismatches
	}
	return doc
}

// matchRequest evaluates one interaction against a request, returning
// every mismatch found in a single pass.
func matchRequest(interaction *pactfile.Interaction, req requestDocument) []matchers.Mismatch {
	var out []matchers.Mismatch
	expected := interaction.Request

	if !strings.EqualFold(expected.Method, req.Method) {
		out = append(out, tagged("MethodMismatch", matchers.Mismatch{
			Path:     "$.method",
			Expected: expected.Method,
			Actual:   req.Method,
			Message:  fmt.Sprintf("expected method %s but received %s", expected.Method, req.Method),
		}))
	}

	out = append(out, matchPath(expected, req.Path)...)
	out = append(out, matchQuery(expected, req.Query)...)
	out = append(out, matchHeaders(expected, req.Headers)...)
	out = append(out, matchBody(expected, req)...)
	return out
}

func matchPath(expected pactfile.Request, actual string) []matchers.Mismatch {
	var rules []matchers.Rule
	if expected.MatchingRules != nil && !expected.MatchingRules.Path.Empty() {
		for _, path := range expected.MatchingRules.Path.Paths() {
			rules = append(rules, expected.MatchingRules.Path.RulesAt(path)...)
		}
	}
	var out []matchers.Mismatch
	if len(rules) > 0 {
		out = matchers.MatchAll(rules, value.NewString(expected.Path), value.NewString(actual), value.RootPath())
	} else if expected.Path != actual {
		out = []matchers.Mismatch{{
			Path:     "$.path",
			Expected: expected.Path,
			Actual:   actual,
			Message:  fmt.Sprintf("expected path %s but received %s", expected.Path, actual),
		}}
	}
	return tagAll("PathMismatch", out)
}

func matchQuery(expected pactfile.Request, actual url.Values) []matchers.Mismatch {
	var out []matchers.Mismatch
	var rules *matchers.Category
	if expected.MatchingRules != nil {
		rules = expected.MatchingRules.Query
	}

	for name, expectedValues := range expected.Query {
		actualValues, present := actual[name]
		if !present {
			out = append(out, matchers.Mismatch{
				Path:     "$.query." + name,
				Expected: strings.Join(expectedValues, ","),
				Message:  fmt.Sprintf("expected query parameter '%s'", name),
			})
			continue
		}
		if paramRules := rules.RulesAt(name); len(paramRules) > 0 {
			for _, actualValue := range actualValues {
				out = append(out, matchers.MatchAll(paramRules,
					value.NewString(first(expectedValues)), value.NewString(actualValue), value.RootPath().Field(name))...)
			}
			continue
		}
		if strings.Join(expectedValues, ",") != strings.Join(actualValues, ",") {
			out = append(out, matchers.Mismatch{
				Path:     "$.query." + name,
				Expected: strings.Join(expectedValues, ","),
				Actual:   strings.Join(actualValues, ","),
				Message:  fmt.Sprintf("expected query parameter '%s' with value '%s' but received '%s'",
					name, strings.Join(expectedValues, ","), strings.Join(actualValues, ",")),
			})
		}
	}

	for name := range actual {
		if _, known := expected.Query[name]; !known {
			out = append(out, matchers.Mismatch{
				Path:    "$.query." + name,
				Actual:  strings.Join(actual[name], ","),
				Message: fmt.Sprintf("received an unexpected query parameter '%s'", name),
			})
		}
	}
	return tagAll("QueryMismatch", out)
}

func matchHeaders(expected pactfile.Request, actual http.Header) []matchers.Mismatch {
	var out []matchers.Mismatch
	var rules *matchers.Category
	if expected.MatchingRules != nil {
		rules = expected.MatchingRules.Header
	}

	for name, expectedValue := range expected.Headers {
		actualValue := actual.Get(name)
		if actualValue == "" {
			out = append(out, matchers.Mismatch{
				Path:     "$.headers." + name,
				Expected: expectedValue,
				Message:  fmt.Sprintf("expected header '%s'", name),
			})
			continue
		}
		headerRules := rules.RulesAt(name)
		if len(headerRules) == 0 {
			headerRules = rules.RulesAt(strings.ToLower(name))
		}
		if len(headerRules) > 0 {
			out = append(out, matchers.MatchAll(headerRules,
				value.NewString(expectedValue), value.NewString(actualValue), value.RootPath().Field(name))...)
			continue
		}
		if !headerValueEqual(expectedValue, actualValue) {
			out = append(out, matchers.Mismatch{
				Path:     "$.headers." + name,
				Expected: expectedValue,
				Actual:   actualValue,
				Message:  fmt.Sprintf("expected header '%s' with value '%s' but received '%s'", name, expectedValue, actualValue),
			})
		}
	}
	return tagAll("HeaderMismatch", out)
}

// headerValueEqual compares header values ignoring whitespace around
// comma-separated elements.
func headerValueEqual(expected, actual string) bool {
	normalize := func(s string) string {
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return strings.Join(parts, ",")
	}
	return normalize(expected) == normalize(actual)
}

func matchBody(expected pactfile.Request, req requestDocument) []matchers.Mismatch {
	if expected.Body == nil {
		return nil
	}
	actual, err := decodeBody(req)
	if err != nil {
		return tagAll("BodyMismatch", []matchers.Mismatch{{
			Path:     "$",
			Expected: expected.Body.String(),
			Actual:   string(req.Body),
			Message:  err.Error(),
		}})
	}
	out := matchers.Compare(*expected.Body, actual, expected.BodyRules(), matchers.Options{AllowUnexpectedKeys: false})
	return tagAll("BodyMismatch", out)
}

func decodeBody(req requestDocument) (value.Value, error) {
	contentType := req.Headers.Get("Content-Type")
	if strings.Contains(contentType, "json") || looksLikeJSON(req.Body) {
		return value.Parse(req.Body)
	}
	return value.NewString(string(req.Body)), nil
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func tagged(mismatchType string, m matchers.Mismatch) matchers.Mismatch {
	m.Type = mismatchType
	return m
}

func tagAll(mismatchType string, mismatches []matchers.Mismatch) []matchers.Mismatch {
	for i := range mismatches {
		if mismatches[i].Type == "" {
			mismatches[i].Type = mismatchType
		}
	}
	return mismatches
}

// describeNearMiss builds the diagnostic lines for the closest failed
// candidate, resolving each failed rule path against the request
// document so the report shows what was actually received.
func describeNearMiss(interaction *pactfile.Interaction, req requestDocument, mismatches []matchers.Mismatch) []string {
	doc := req.asDocument()
	lines := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		line := fmt.Sprintf("%s at %s: %s", m.Type, m.Path, m.Message)
		if received, err := jsonpath.Get(documentPath(m.Path), doc); err == nil && received != nil {
			line = fmt.Sprintf("%s (received: %v)", line, received)
		}
		lines = append(lines, line)
	}
	return lines
}

// documentPath rebases a body-relative rule path ($.id) onto the
// request document ($.body.id). Method/path/query mismatch paths are
// already document-rooted.
func documentPath(path string) string {
	switch {
	case path == "$":
		return "$.body"
	case strings.HasPrefix(path, "$.method"), strings.HasPrefix(path, "$.path"),
		strings.HasPrefix(path, "$.query"), strings.HasPrefix(path, "$.headers"):
		return path
	case strings.HasPrefix(path, "$."):
		return "$.body." + strings.TrimPrefix(path, "$.")
	}
	return path
}
