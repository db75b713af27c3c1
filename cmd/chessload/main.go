package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/chess-vn/chessload/internal/cli"
)

// Main is the entry point for the application.
// It's exported to make it testable.
func Main() int {
	err := cli.Execute()
	if err != nil && !errors.Is(err, cli.ErrThresholdsCrossed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return cli.ExitCode(err)
}

func main() {
	os.Exit(Main())
}
