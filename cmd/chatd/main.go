package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"employee-chat-backend/config"
	"employee-chat-backend/internal/api"
	"employee-chat-backend/internal/auth"
	"employee-chat-backend/internal/db"
	"employee-chat-backend/internal/push"
	"employee-chat-backend/internal/relay"
	"employee-chat-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "chat-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}
	if cfg.Auth.Secret == "" {
		logger.Fatalf("auth.secret must be configured.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	dispatcher := push.NewDispatcher(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, &webpushOptions, cfg.Push.Timeout)
	dispatcher.Start(ctx)
	logger.Printf("push dispatcher started with %d workers", cfg.WorkerPool.Size)

	registry := relay.NewRegistry()
	relayRouter := relay.NewRouter(registry, appStore, dispatcher, cfg.Relay)

	router := api.NewRouter(&cfg.Server, appStore, &webpushOptions, tokens, relayRouter)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
