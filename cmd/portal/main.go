// Command portal runs the P4 license portal HTTP service.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"p4portal/internal/app"
)

func main() {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
