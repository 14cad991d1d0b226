// Package main is the entry point for the xfs bot.
package main

import (
	"fmt"
	"os"

	"github.com/dshills/xfs/internal/bot"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	bot.Version = version

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
