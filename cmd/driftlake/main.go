// Package main provides the CLI for the Driftlake snapshot engine.
package main

import (
	"os"

	"github.com/driftlake-labs/driftlake/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
