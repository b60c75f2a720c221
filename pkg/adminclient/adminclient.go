// Package adminclient is a small HTTP client for the covenant admin
// API, for test suites that run the daemon out of process.
package adminclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

type Client struct {
	client http.Client
	url    string
}

func New(url string) *Client {
	return &Client{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

// WaitUntilUp polls the readiness endpoint until the daemon answers.
func (c *Client) WaitUntilUp() error {
	return retry.Do(func() error {
		res, err := c.client.Get(c.url + "/ready")
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusNoContent {
			return errors.Errorf("admin API not ready: %d", res.StatusCode)
		}
		return nil
	}, retry.Attempts(10), retry.Delay(200*time.Millisecond))
}

// Create starts a mock server for the pact document and returns its
// port. port 0 lets the daemon pick one.
func (c *Client) Create(pactJSON string, port int, useTLS bool) (int, error) {
	target := fmt.Sprintf("%s/?port=%d&tls=%t", c.url, port, useTLS)
	res, err := c.client.Post(target, "application/json", bytes.NewBufferString(pactJSON))
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return 0, apiError(res)
	}
	var created struct {
		Port int `json:"port"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		return 0, errors.Wrap(err, "unable to decode create response")
	}
	return created.Port, nil
}

// Verify fetches the mismatch report. matched is true when the report
// is empty and the server returned 200.
func (c *Client) Verify(port int) (matched bool, report string, err error) {
	res, err := c.client.Get(fmt.Sprintf("%s/mockserver/%d/verify", c.url, port))
	if err != nil {
		return false, "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return false, "", err
	}
	switch res.StatusCode {
	case http.StatusOK:
		return true, string(body), nil
	case http.StatusExpectationFailed:
		return false, string(body), nil
	default:
		return false, "", errors.Errorf("verify returned %d", res.StatusCode)
	}
}

// WritePact asks the daemon to persist the pact for the given server.
func (c *Client) WritePact(port int, dir string, overwrite bool) error {
	target := fmt.Sprintf("%s/mockserver/%d/pact?dir=%s&overwrite=%t", c.url, port, dir, overwrite)
	res, err := c.client.Post(target, "application/json", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return apiError(res)
	}
	return nil
}

// Stop shuts down the mock server on port.
func (c *Client) Stop(port int) error {
	return c.delete(fmt.Sprintf("%s/mockserver/%d", c.url, port))
}

// StopAll shuts down every mock server the daemon runs.
func (c *Client) StopAll() error {
	return c.delete(c.url + "/mockserver")
}

func (c *Client) delete(target string) error {
	req, err := http.NewRequest(http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return apiError(res)
	}
	return nil
}

func apiError(res *http.Response) error {
	var payload struct {
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err == nil && payload.ErrorMessage != "" {
		return errors.Errorf("admin API returned %d: %s", res.StatusCode, payload.ErrorMessage)
	}
	return errors.Errorf("admin API returned %d", res.StatusCode)
}
