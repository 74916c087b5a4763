package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/Rajchodisetti/trading-bot/internal/cli"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

var version = "dev" // set via -ldflags "-X main.version=..."

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		observ.Error("tradebot_exit", err, nil)
		stop()
		os.Exit(1)
	}
}
