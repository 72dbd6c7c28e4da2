package main

import (
	"context"
	"os"

	"github.com/seralabs/telepilot/internal/cmd"
)

// Overridden at build time via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
