// Package main provides the entry point for the omni CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/felixgeelhaar/omni/interfaces/cli"
)

func main() {
	app := cli.New()

	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrRunIncomplete) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
