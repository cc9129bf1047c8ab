// Package main provides the entry point for the autodomum CLI.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/autodomum/autodomum/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = version

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "autodomum: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
