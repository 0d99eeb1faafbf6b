package version

import (
	"github.com/hashicorp-forge/lyra/internal/cmd/base"
	"github.com/hashicorp-forge/lyra/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the lyra version"
}

func (c *Command) Help() string {
	return `Usage: lyra version

  Print the lyra version.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output("lyra " + version.Version)
	return 0
}
