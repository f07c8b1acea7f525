package main

import (
	"fmt"
	"os"

	"github.com/lattice-run/lattice/cmd/latticectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
