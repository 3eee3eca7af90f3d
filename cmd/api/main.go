package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nexconsult/mca-verify/internal/api"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/services"

	// Import docs for Swagger
	_ "github.com/nexconsult/mca-verify/docs"
)

// @title MCA Verification API
// @version 1.0
// @description Queued verification and record extraction against the MCA portal

// @contact.name API Support
// @contact.email support@nexconsult.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting MCA verification API...")

	serviceContainer, err := services.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize services: %v", err)
	}
	defer serviceContainer.Close()

	// Wait for interrupt signal to gracefully shutdown the server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := api.Serve(ctx, cfg, logger, serviceContainer); err != nil {
		logger.Errorf("Server error: %v", err)
	}
}
