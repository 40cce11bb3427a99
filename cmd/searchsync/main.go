// Package main provides the entry point for the searchsync CLI.
package main

import (
	"os"

	"github.com/conexa-labs/searchsync/cmd/searchsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
