package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/harrison/briefflow/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		// an ExitError without a cause has already reported itself
		var exitErr *cmd.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
