// Package main is the entry point for the countopt CLI binary.
package main

import (
	"os"

	"countopt/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
