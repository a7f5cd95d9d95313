package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/rs/cors"

	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so defers execute and the shutdown path stays
// testable instead of scattering os.Exit calls around.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Core components: registry, broadcaster, hub
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, registry)
	hub := runtime.NewHub(log, registry, broadcaster, config.MailboxSize)

	// 3. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	capacityWorker := workers.NewChannelCapacityWorker(log,
		[]workers.NamedChannel{{Name: "hub.mailbox", Channel: hub.MailboxChannel()}},
		config.MetricInterval)
	sup.Add(hub, capacityWorker)

	// 4. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 5. HTTP surface
	handler := ws.NewHandler(log, hub, ws.HandlerConfig{
		AllowedOrigins: config.Origins(),
		Session: ws.SessionConfig{
			SendBuffer:       config.ConnectionBufferSize,
			MaxMessageSize:   config.MaxMessageSize,
			TypingQuiescence: config.TypingQuiescence,
		},
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: config.Origins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:         address,
		Handler:      corsHandler.Handler(handler.Router()),
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat relay", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final cleanup: stop accepting connections, then stop the workers
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}

	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
