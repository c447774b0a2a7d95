// Package main provides the entry point for the kestrel CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrelsearch/kestrel/cmd/kestrel/cmd"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, kerrors.FormatForCLI(err))
		os.Exit(kerrors.ExitCode(err))
	}
}
