package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/cmd"
)

func main() {
	// A .env file is optional; credentials can come from the environment.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "err", err)
	}

	if err := fang.Execute(context.Background(), cmd.RootCmd); err != nil {
		os.Exit(1)
	}
}
