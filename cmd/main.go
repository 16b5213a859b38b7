package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"picoedge.com/ijpkg/internal/interfaces/cli"
	"picoedge.com/ijpkg/internal/interfaces/di"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, di.NewCLIContainer(), os.Args[1:])
	stop()
	os.Exit(code)
}
