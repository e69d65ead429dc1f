// ABOUTME: CLI entrypoint for pressroom: serve the HTTP API or run one generation from the terminal.
// ABOUTME: Loads .env files, installs signal handling, and hands off to the cobra command tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389-research/pressroom/config"
)

var version = "dev"

func main() {
	config.LoadDotEnvAuto()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes the command tree and returns the process exit code.
func run(ctx context.Context, args []string) int {
	root := newRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
