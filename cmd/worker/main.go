// Command worker runs the Worker Runtimes and supporting loops (Health
// Monitor, Webhook Dispatcher sweep) without the HTTP API surface — for
// deployments that split API and worker processes across separate fleets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/careerforge/backend/internal/app"
	"github.com/careerforge/backend/internal/common"
)

func main() {
	configPath := os.Getenv("CAREERFORGE_CONFIG")

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.RunWorkers(ctx)
	a.StartHealthMonitor(ctx)
	a.StartWebhookSweep(ctx)

	a.Logger.Info().Msg("worker fleet running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")
	cancel()
	a.Close()
	common.PrintShutdownBanner(a.Logger)
}
