package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"scenereview/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The detector runs out of process; the HTTP layer mounts the
	// manager returned by app.Manager().
	application, err := app.New(nil)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
