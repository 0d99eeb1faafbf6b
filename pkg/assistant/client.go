// Package assistant is a client for an OpenAI Assistants compatible thread
// API. A message is appended to a thread, a run of the configured assistant is
// started on it, and the run is polled until the assistant has replied.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultBaseURL is the OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout bounds a single HTTP request to the backend.
	DefaultTimeout = 120 * time.Second

	// DefaultPollInterval is how often an in-progress run is checked.
	DefaultPollInterval = time.Second
)

// ErrNoDefaultThread is returned when a default thread is needed but none is
// configured.
var ErrNoDefaultThread = errors.New("no default assistant thread configured")

// Config holds configuration for the assistant client.
type Config struct {
	APIKey          string        // API key sent as a bearer token
	BaseURL         string        // Base URL (default: https://api.openai.com/v1)
	AssistantID     string        // Assistant that answers messages
	DefaultThreadID string        // Thread returned by GetThread (optional)
	Timeout         time.Duration // HTTP timeout (default: 120s)
	PollInterval    time.Duration // Run polling interval (default: 1s)
	Logger          hclog.Logger  // Logger (optional)
}

// Client talks to the assistant backend.
type Client struct {
	apiKey          string
	baseURL         string
	assistantID     string
	defaultThreadID string
	pollInterval    time.Duration
	httpClient      *http.Client
	logger          hclog.Logger
}

// NewClient creates a new assistant client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assistant API key is required")
	}
	if cfg.AssistantID == "" {
		return nil, fmt.Errorf("assistant ID is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		assistantID:     cfg.AssistantID,
		defaultThreadID: cfg.DefaultThreadID,
		pollInterval:    cfg.PollInterval,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger.Named("assistant"),
	}, nil
}

// DefaultThreadID returns the configured default thread, if any.
func (c *Client) DefaultThreadID() string {
	return c.defaultThreadID
}

// APIError is an error response from the backend.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("assistant API error (%d)", e.StatusCode)
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

func (c *Client) doRequest(
	ctx context.Context,
	method, path string,
	params url.Values,
	body, result any,
) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Trace("sending request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			errResp.Error.StatusCode = resp.StatusCode
			return errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
