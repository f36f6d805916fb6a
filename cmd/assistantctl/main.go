package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/nutrition-assistant/internal/adapters/cli"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/queue/nats"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	if err := cli.NewRootCommand(nil, openPublisher).ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func openPublisher(natsURL, subject string) (ports.ScanEventPublisher, func(), error) {
	queue, err := nats.New(natsURL, subject)
	if err != nil {
		return nil, nil, err
	}
	return queue, queue.Close, nil
}
