package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authfacade/internal/cli"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/config"
	"google.golang.org/grpc/status"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.LoadConfig()

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := logging.NewJSONLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		return 1
	}
	defer app.Close(context.Background())

	if err := cli.NewApp(app, os.Stdin, os.Stdout).Run(ctx, os.Args[1:]); err != nil {
		st := status.Convert(auth.ToStatus(err))
		fmt.Fprintf(os.Stderr, "error: %v (%s)\n", err, st.Code())
		return 1
	}
	return 0
}
