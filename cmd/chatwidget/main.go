package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/comigor/chatwidget-go/internal/logger"
)

func main() {
	// API keys usually live in .env next to config.yaml; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.L.Warn("failed to load .env", "error", err)
	}

	if err := newRootCommand().Execute(); err != nil {
		logger.L.Error("command failed", "error", err)
		os.Exit(1)
	}
}
