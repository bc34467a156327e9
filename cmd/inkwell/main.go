package main

import (
	"fmt"
	"os"

	"github.com/roach88/inkwell/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "inkwell: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
