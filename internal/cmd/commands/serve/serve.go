package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/lyra/internal/api"
	"github.com/hashicorp-forge/lyra/internal/cmd/base"
	"github.com/hashicorp-forge/lyra/internal/config"
	"github.com/hashicorp-forge/lyra/internal/credentials"
	"github.com/hashicorp-forge/lyra/internal/metrics"
	"github.com/hashicorp-forge/lyra/internal/server"
	"github.com/hashicorp-forge/lyra/pkg/assistant"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownTimeout = 15 * time.Second

type Command struct {
	*base.Command

	flagConfig string
	flagAddr   string
}

func (c *Command) Synopsis() string {
	return "Run the lyra API server"
}

func (c *Command) Help() string {
	return `Usage: lyra serve [options]

  Run the lyra API server. Without -config, settings come from defaults and
  the DATABRICKS_HOST, DATABRICKS_TOKEN and OPENAI_API_KEY environment
  variables.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to HCL config file",
	)
	f.StringVar(
		&c.flagAddr, "addr", "",
		"Address to listen on, overriding listen_address in the config file",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}
	if c.flagAddr != "" {
		cfg.ListenAddress = c.flagAddr
	}

	c.Log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	srv, err := NewServer(cfg, c.Log, afero.NewOsFs(), prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing server: %v", err))
		return 1
	}
	defer srv.Resolver.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error listening on %s: %v", cfg.ListenAddress, err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.Log.Info("listening", "address", ln.Addr().String())
	if err := Serve(ctx, ln, api.NewRouter(srv), c.Log); err != nil {
		c.UI.Error(fmt.Sprintf("error running server: %v", err))
		return 1
	}
	return 0
}

// NewServer builds the server dependencies described by cfg. The assistant
// is left nil when it is not configured, and metrics are a no-op when
// disabled.
func NewServer(
	cfg *config.Config,
	log hclog.Logger,
	fs afero.Fs,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
) (server.Server, error) {
	srv := server.Server{
		Config:   cfg,
		Logger:   log,
		Resolver: credentials.NewResolver(cfg.WorkspaceConfig(), log),
		Fs:       fs,
		Metrics:  metrics.Noop{},
	}

	if cfg.WorkspaceConfig().Host == "" {
		log.Warn("no default workspace host configured; requests without credentials will be rejected")
	}

	if cfg.AssistantEnabled() {
		a, err := assistant.NewClient(cfg.AssistantConfig(log))
		if err != nil {
			return server.Server{}, fmt.Errorf("error creating assistant client: %w", err)
		}
		srv.Assistant = a
	} else {
		log.Warn("assistant not configured; chat routes are disabled")
	}

	if cfg.MetricsEnabled() {
		srv.Metrics = metrics.NewProm(cfg.Metrics.Namespace, reg)
		srv.MetricsHandler = metrics.Handler(gatherer)
	}

	return srv, nil
}

// Serve serves h on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, log hclog.Logger) error {
	httpSrv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
