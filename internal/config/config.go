// Package config loads the lyra server configuration from an HCL file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/hashicorp-forge/lyra/pkg/assistant"
	"github.com/hashicorp-forge/lyra/pkg/workspace"
)

const (
	DefaultListenAddress    = "127.0.0.1:8000"
	DefaultLogLevel         = "info"
	DefaultMetricsNamespace = "lyra"
)

// Environment variables consulted when the file leaves a value unset.
const (
	EnvWorkspaceHost   = "DATABRICKS_HOST"
	EnvWorkspaceToken  = "DATABRICKS_TOKEN"
	EnvAssistantAPIKey = "OPENAI_API_KEY"
)

// Config is the lyra server configuration.
type Config struct {
	ListenAddress string     `hcl:"listen_address,optional"`
	LogLevel      string     `hcl:"log_level,optional"`
	Workspace     *Workspace `hcl:"workspace,block"`
	Assistant     *Assistant `hcl:"assistant,block"`
	Metrics       *Metrics   `hcl:"metrics,block"`
}

// Workspace configures the default workspace credential.
type Workspace struct {
	Host      string `hcl:"host,optional"`
	Token     string `hcl:"token,optional"`
	Timeout   string `hcl:"timeout,optional"`
	TLSVerify *bool  `hcl:"tls_verify,optional"`
}

// Assistant configures the chat assistant backend.
type Assistant struct {
	BaseURL         string `hcl:"base_url,optional"`
	APIKey          string `hcl:"api_key,optional"`
	AssistantID     string `hcl:"assistant_id,optional"`
	DefaultThreadID string `hcl:"default_thread_id,optional"`
	Timeout         string `hcl:"timeout,optional"`
	PollInterval    string `hcl:"poll_interval,optional"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled   *bool  `hcl:"enabled,optional"`
	Namespace string `hcl:"namespace,optional"`
}

// envFunc is the env("NAME") function available in configuration
// expressions. Unset variables evaluate to an empty string.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// NewConfig returns a configuration holding only defaults and values from
// the environment.
func NewConfig() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load decodes the HCL file at path, fills unset values from the environment
// and defaults, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	if path == "" {
		c := NewConfig()
		return c, c.Validate()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	var c Config
	if err := hclsimple.DecodeFile(path, evalContext(), &c); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	c.setDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Workspace == nil {
		c.Workspace = &Workspace{}
	}
	if c.Workspace.Host == "" {
		c.Workspace.Host = os.Getenv(EnvWorkspaceHost)
	}
	if c.Workspace.Token == "" {
		c.Workspace.Token = os.Getenv(EnvWorkspaceToken)
	}

	if c.Assistant == nil {
		c.Assistant = &Assistant{}
	}
	if c.Assistant.APIKey == "" {
		c.Assistant.APIKey = os.Getenv(EnvAssistantAPIKey)
	}

	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validation.Validate(c.ListenAddress, validation.Required); err != nil {
		result = multierror.Append(result, fmt.Errorf("listen_address: %w", err))
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("log_level: invalid level %q", c.LogLevel))
	}

	if c.Workspace != nil {
		if err := validDuration(c.Workspace.Timeout); err != nil {
			result = multierror.Append(result, fmt.Errorf("workspace.timeout: %w", err))
		}
	}

	if c.Assistant != nil {
		if err := validDuration(c.Assistant.Timeout); err != nil {
			result = multierror.Append(result, fmt.Errorf("assistant.timeout: %w", err))
		}
		if err := validDuration(c.Assistant.PollInterval); err != nil {
			result = multierror.Append(result, fmt.Errorf("assistant.poll_interval: %w", err))
		}
		if c.Assistant.BaseURL != "" &&
			!strings.HasPrefix(c.Assistant.BaseURL, "http://") &&
			!strings.HasPrefix(c.Assistant.BaseURL, "https://") {
			result = multierror.Append(result,
				fmt.Errorf("assistant.base_url: must use http or https scheme"))
		}
	}

	return result.ErrorOrNil()
}

// WorkspaceConfig returns the default workspace credential and client
// settings. Host and token may be empty; requests then fail authentication.
func (c *Config) WorkspaceConfig() workspace.Config {
	return workspace.Config{
		Host:      c.Workspace.Host,
		Token:     c.Workspace.Token,
		Timeout:   parseDuration(c.Workspace.Timeout, workspace.DefaultTimeout),
		TLSVerify: c.Workspace.TLSVerify,
	}
}

// AssistantEnabled reports whether enough is configured to reach the
// assistant backend.
func (c *Config) AssistantEnabled() bool {
	return c.Assistant.APIKey != "" && c.Assistant.AssistantID != ""
}

// AssistantConfig returns the assistant client settings.
func (c *Config) AssistantConfig(logger hclog.Logger) assistant.Config {
	return assistant.Config{
		APIKey:          c.Assistant.APIKey,
		BaseURL:         c.Assistant.BaseURL,
		AssistantID:     c.Assistant.AssistantID,
		DefaultThreadID: c.Assistant.DefaultThreadID,
		Timeout:         parseDuration(c.Assistant.Timeout, assistant.DefaultTimeout),
		PollInterval:    parseDuration(c.Assistant.PollInterval, assistant.DefaultPollInterval),
		Logger:          logger,
	}
}

// MetricsEnabled reports whether the /metrics endpoint is served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

func validDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must be non-negative")
	}
	return nil
}

// parseDuration parses a validated duration, returning def when s is empty.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
