package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/payrollctl"
	"github.com/dmitrijs2005/paykeeper/internal/server"
	"github.com/dmitrijs2005/paykeeper/internal/server/config"
)

// noQueue drops enqueued periods; payrollctl never commits, and sync-retry
// runs inline. The server's recovery pass picks up anything left pending.
type noQueue struct{}

func (noQueue) Enqueue(string) bool { return false }

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	if len(args) == 0 {
		return exit(payrollctl.NewApp(nil, nil, nil, os.Stdin, os.Stdout).Run(context.Background(), nil))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig(args[1:])
	logger, err := logging.New(os.Stderr, "text", cfg.LogLevel)
	if err != nil {
		return exit(err)
	}

	svc, err := server.NewServices(ctx, cfg, logger, noQueue{})
	if err != nil {
		return exit(err)
	}
	defer svc.Close()

	app := payrollctl.NewApp(svc.Rates, svc.Ytd, svc.TaxSync, os.Stdin, os.Stdout)
	return exit(app.Run(ctx, args))
}

func exit(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, payrollctl.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, "payrollctl:", err)
		return 1
	}
}
