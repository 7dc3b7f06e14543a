package main

import (
	"fmt"
	"os"

	"github.com/yndnr/ussal-go/internal/cli/command"
)

func main() {
	app := command.App()

	// Exit codes carried by the error are applied inside Run.
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(command.ExitFailure)
	}
}
