package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/lyra/internal/cmd/base"
	"github.com/hashicorp-forge/lyra/internal/cmd/commands/serve"
	"github.com/hashicorp-forge/lyra/internal/cmd/commands/version"
)

// initCommands returns the factories for every lyra subcommand.
func initCommands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	b := base.NewCommand(log, ui)

	return map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
