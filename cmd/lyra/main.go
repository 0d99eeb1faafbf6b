package main

import (
	"os"

	"github.com/hashicorp-forge/lyra/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
