package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
)

// Client is an authenticated session against one remote workspace. A Client is
// cheap to build and is meant to live for a single request.
type Client struct {
	config *Config
	client *http.Client
	logger hclog.Logger
}

// NewClient validates cfg and returns a client for it. No remote call is made;
// use Verify to check the credentials.
func NewClient(ctx context.Context, cfg *Config, logger hclog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workspace config: %w", err)
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Client{
		config: cfg,
		client: cfg.NewHTTPClient(ctx),
		logger: logger.Named("workspace-client"),
	}, nil
}

// Host returns the normalized workspace URL this client talks to.
func (c *Client) Host() string {
	return c.config.BaseURL()
}

// APIError is a non-2xx response from the workspace API.
type APIError struct {
	StatusCode int
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("workspace API error (status %d): %s: %s",
			e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("workspace API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a workspace API error for a missing
// resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound ||
		apiErr.ErrorCode == "RESOURCE_DOES_NOT_EXIST"
}

// IsUnauthorized reports whether err is a workspace API error caused by bad
// credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized ||
		apiErr.StatusCode == http.StatusForbidden
}

// doRequest performs a single request against the workspace API and decodes
// the JSON response into result, if provided. Failed requests are not retried.
func (c *Client) doRequest(
	ctx context.Context,
	method, path string,
	params url.Values,
	body any,
	result any,
) error {
	endpoint := c.config.BaseURL() + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Trace("sending request", "method", method, "path", path)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		dec := json.NewDecoder(bytes.NewReader(respBody))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
