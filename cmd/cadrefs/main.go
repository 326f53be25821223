package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/cmd"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitPartial = 2

	// exitInterrupted follows the shell convention of 128+SIGINT.
	exitInterrupted = 130
)

var (
	osExit  = os.Exit
	execute = cmd.Execute
)

func main() {
	// Interrupts cancel the scan between files; no report is written and the
	// previous output file is left as it was.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	osExit(code)
}

func run(ctx context.Context) int {
	return exitCode(execute(ctx))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, schemas.ErrPartialScan):
		return exitPartial
	default:
		return exitFailure
	}
}
