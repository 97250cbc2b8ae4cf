package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"carechat/api"
	"carechat/auth"
	"carechat/bus"
	"carechat/directory"
	"carechat/domain"
	"carechat/logs"
	"carechat/repositories"
	"carechat/services"
	"carechat/storage"
	"carechat/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so deferred cleanup always executes
// before the process exits.
func run() error {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	messageRepository, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		return err
	}
	defer messageRepository.Close()

	audioStore, err := storage.NewAudioStore(config.AudioDir, log)
	if err != nil {
		return err
	}

	userDirectory, err := loadDirectory(config.DirectorySeed)
	if err != nil {
		return fmt.Errorf("directory seed: %w", err)
	}

	hub := bus.NewHub(log)
	messageService := services.NewMessageService(messageRepository, hub, userDirectory, audioStore, log)
	conversationService := services.NewConversationService(messageRepository, userDirectory, log)
	tokens := auth.NewTokens(config.JWTKey, config.AuthTokenDuration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewAttachmentSweeper(log, messageRepository, audioStore,
		config.SweepInterval, config.SweepLookback))
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	handler := api.NewHandler(log, messageService, conversationService, audioStore)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: api.NewRouter(handler, hub, tokens),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-supDone
	return nil
}

// loadDirectory seeds the in-process user directory from a JSON file of
// profiles. An empty path yields an empty directory.
func loadDirectory(path string) (*directory.Static, error) {
	if path == "" {
		return directory.NewStatic(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var profiles []domain.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, err
	}
	return directory.NewStatic(profiles...), nil
}
