package cmd

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/lyra/internal/version"
)

// defaultCommand runs when no subcommand is named.
const defaultCommand = "serve"

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	name := filepath.Base(args[0])

	log := hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: hclog.Info,
	})

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := &cli.CLI{
		Name:     name,
		Args:     subcommandArgs(args[1:]),
		Version:  version.Version,
		Commands: initCommands(log, ui),
	}

	exitCode, err := c.Run()
	if err != nil {
		log.Error("error running command", "error", err)
		return 1
	}
	return exitCode
}

// subcommandArgs maps the raw arguments onto a subcommand invocation. A lone
// version flag runs "version"; no arguments, or flags only, run the default
// command with those flags.
func subcommandArgs(args []string) []string {
	if len(args) == 1 {
		switch args[0] {
		case "-v", "-version", "--version":
			return []string{"version"}
		}
	}

	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return append([]string{defaultCommand}, args...)
	}
	return args
}
