package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/yndnr/tablesync/internal/cli/command"
	"github.com/yndnr/tablesync/internal/core/domain"
)

// Exit codes.
const (
	exitError      = 1
	exitMissingKey = 2
	exitUsage      = 64
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingKey), errors.Is(err, domain.ErrMissingTableService):
		return exitMissingKey
	case errors.Is(err, domain.ErrInvalidArgument):
		return exitUsage
	default:
		return exitError
	}
}
