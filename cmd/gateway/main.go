package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blueprint/internal/gateway/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("gateway init failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("gateway stopped: %v", err)
		}
	}

	log.Println("gateway: draining")
	// In-flight export and bundle handlers get the same grace as HTTP.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("gateway shutdown: %v", err)
	}
	log.Println("gateway: stopped")
}
