// Package credentials turns a host and token into a verified workspace client.
package credentials

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/pkg/workspace"
)

// invalidCredentialsMessage is the only failure detail returned to callers.
const invalidCredentialsMessage = "invalid host or token"

// Credential identifies a workspace and the token used to access it.
type Credential struct {
	Host  string `json:"host"`
	Token string `json:"token"`
}

// Resolver builds per-request workspace clients. Clients are never reused
// across requests, but they share one connection pool.
type Resolver struct {
	defaults  workspace.Config
	transport *http.Transport
	logger    hclog.Logger
}

// NewResolver returns a Resolver that falls back to defaults when a request
// carries no credentials of its own.
func NewResolver(defaults workspace.Config, logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	transport := workspace.NewTransport(defaults.TLSVerify)
	defaults.Transport = transport

	return &Resolver{
		defaults:  defaults,
		transport: transport,
		logger:    logger.Named("credentials"),
	}
}

// Close releases idle connections held by the shared pool.
func (r *Resolver) Close() {
	r.transport.CloseIdleConnections()
}

// Resolve returns a client for override, or for the default workspace when
// override is nil or empty. The client is verified against the workspace
// before it is returned. Failures are reported as a
// *dispatch.AuthenticationError; the cause is logged, not returned.
func (r *Resolver) Resolve(ctx context.Context, override *Credential) (*workspace.Client, error) {
	cfg := r.defaults
	if override != nil && (override.Host != "" || override.Token != "") {
		cfg.Host = override.Host
		cfg.Token = override.Token
	}

	client, err := workspace.NewClient(ctx, &cfg, r.logger)
	if err != nil {
		r.logger.Error("error creating workspace client", "error", err)
		return nil, &dispatch.AuthenticationError{Message: invalidCredentialsMessage}
	}

	user, err := client.Verify(ctx)
	if err != nil {
		r.logger.Error("error verifying workspace credentials",
			"error", err,
			"host", client.Host(),
		)
		return nil, &dispatch.AuthenticationError{Message: invalidCredentialsMessage}
	}

	r.logger.Info("authenticated with workspace",
		"host", client.Host(),
		"user", user.UserName,
	)
	return client, nil
}
