// Command tally is a local-first income and expense tracker.
package main

import (
	"os"

	"github.com/roach88/tally/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
