package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/server"
	"github.com/clipdeck/clipdeck/internal/server/config"
	"github.com/clipdeck/clipdeck/internal/server/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	srv := server.New(cfg, storage.NewMemory(), logger)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
