package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalnine/sfmbench/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
