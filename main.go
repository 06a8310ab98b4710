package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gnoskos/gnoskos/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.RootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
