// Package main implements the bytecode flow CLI (bcf).
// It builds control-flow graphs and infers register and stack types for
// methods given as textual listings.
package main

import (
	"os"

	"github.com/l3aro/go-bytecode-flow/cmd/bcf/commands"
)

var version = "dev"

func main() {
	commands.Version = version
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
