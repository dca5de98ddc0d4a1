package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"rent_bot/internal/callback"
	"rent_bot/internal/config"
	"rent_bot/internal/notify"
	"rent_bot/internal/poller"
	"rent_bot/internal/storage"
	"rent_bot/internal/vk"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	client := vk.New(cfg.WallToken(), cfg.BotToken())
	client.SetVersion(cfg.APIVersion)

	dispatcher := notify.New(store, client, cfg.GroupID, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "delivery_mode", cfg.DeliveryMode, "group_id", cfg.GroupID)

	switch cfg.DeliveryMode {
	case config.ModeCallback:
		srv := callback.New(store, dispatcher, cfg.GroupID, cfg.ConfirmationKey, cfg.Secret, log)
		if err := srv.Run(ctx, cfg.CallbackAddr); err != nil {
			log.Error("callback server", "error", err)
			os.Exit(1)
		}
	default:
		p := poller.New(client, store, dispatcher, cfg.GroupID, log)
		p.SetInterval(cfg.PollInterval)
		p.Run(ctx)
	}

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
