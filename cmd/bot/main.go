// Command bot runs the WhatsApp zmanim reminder service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/app"
	"github.com/McdWebs/WA-bot-sub000/internal/config"
	"github.com/McdWebs/WA-bot-sub000/internal/logger"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred flushes happen before exit.
func run() int {
	// Values from .env never override the real environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	bot, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	if err := bot.Run(context.Background()); err != nil {
		log.Error("stopped with error", zap.Error(err))
		return 1
	}
	log.Info("bye")
	return 0
}
