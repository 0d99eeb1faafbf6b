package server

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/lyra/internal/config"
	"github.com/hashicorp-forge/lyra/internal/credentials"
	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/internal/metrics"
)

// Server contains the server configuration.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// Logger is the logger for the server.
	Logger hclog.Logger

	// Resolver builds an authenticated workspace client for each request.
	Resolver *credentials.Resolver

	// Assistant is the chat backend. It is nil when no assistant is
	// configured.
	Assistant dispatch.Assistant

	// Fs is the local filesystem notebooks are uploaded from.
	Fs afero.Fs

	// Metrics records request and operation counts.
	Metrics metrics.Metrics

	// MetricsHandler serves /metrics. It is nil when metrics are disabled.
	MetricsHandler http.Handler
}
