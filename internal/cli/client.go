// Package cli implements the tradectl operator commands on top of the REST API.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client calls the autotrader REST API and unwraps the {data} envelope
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL (e.g. http://localhost:8001)
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Get fetches /api{path}?query into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	_, err := c.do(ctx, http.MethodGet, path, query, nil, out)
	return err
}

// Post sends body as JSON to /api{path} and decodes the response data into out.
// The status code is returned so callers can tell FILLED (201) from PENDING (202).
// A 422 still decodes the rejected order into out and returns an *APIError.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) (int, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) (int, error) {
	endpoint := c.baseURL + "/api" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity && out != nil {
		if err := decodeEnvelope(raw, out); err == nil {
			return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: "rejected by risk gate"}
		}
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, decodeEnvelope(raw, out)
}

func decodeEnvelope(raw []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
