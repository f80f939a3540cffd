// Package main provides the entry point for the chaekko CLI.
package main

import (
	"os"

	"github.com/chaekko/chaekko/cmd/chaekko/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
