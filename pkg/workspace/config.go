package workspace

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout is applied to remote calls when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Config contains the connection settings for a remote workspace.
//
// Example configuration (HCL):
//
//	workspace {
//	  host       = env("DATABRICKS_HOST")
//	  token      = env("DATABRICKS_TOKEN")
//	  timeout    = "30s"
//	  tls_verify = true
//	}
type Config struct {
	// Host is the base URL of the workspace, e.g.
	// "https://adb-1234567890.12.azuredatabricks.net". A bare hostname is
	// accepted and assumed to be https.
	Host string

	// Token is the personal access token sent as a Bearer credential.
	Token string

	// TLSVerify controls TLS certificate verification. Nil means true.
	TLSVerify *bool

	// Timeout bounds each remote request. Zero means DefaultTimeout.
	Timeout time.Duration

	// Transport carries the requests. Clients built from configs sharing a
	// Transport share its connection pool. Nil means a new transport per
	// client, see NewTransport.
	Transport http.RoundTripper
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	u, err := url.Parse(normalizeHost(c.Host))
	if err != nil {
		return fmt.Errorf("invalid host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("host must use http or https scheme, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid host: %q", c.Host)
	}

	if c.Token == "" {
		return fmt.Errorf("token is required")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got: %v", c.Timeout)
	}

	return nil
}

// BaseURL returns the normalized host with scheme and without a trailing
// slash.
func (c *Config) BaseURL() string {
	return normalizeHost(c.Host)
}

// NewTransport returns a pooled transport. A non-nil tlsVerify set to false
// disables certificate verification.
func NewTransport(tlsVerify *bool) *http.Transport {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if tlsVerify != nil && !*tlsVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	return transport
}

// NewHTTPClient creates an HTTP client that authenticates every request with
// the configured token.
func (c *Config) NewHTTPClient(ctx context.Context) *http.Client {
	var transport http.RoundTripper = c.Transport
	if transport == nil {
		transport = NewTransport(c.TLSVerify)
	}

	// The oauth2 transport reads its base transport from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
	}))

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	client.Timeout = timeout

	return client
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}
