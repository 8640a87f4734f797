// Package main provides the entry point for the automakerctl CLI.
package main

import (
	"os"

	"github.com/automakerhq/automaker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
