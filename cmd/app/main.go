package main

import (
	"DefectVision/internal/config"
	"DefectVision/pkg/log"
	"DefectVision/pkg/redis"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}

	validator := config.NewValidator()
	servingConfig, err := config.LoadServingConfig(validator)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "Failed to load configuration")
	}

	fiberApp := config.NewFiber(logger, servingConfig.MaxUploadBytes)
	redisServer := redis.New(logger)

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithServingConfig(servingConfig),
		config.WithModel(),
		config.WithMiddleware(),
		config.WithUtils(),
		config.WithRedisServer(redisServer),
		config.WithS3Client(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	log.Info(log.Fields{
		"address": servingConfig.Address(),
		"backend": servingConfig.ModelBackend,
	}, "Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "Error during shutdown")
	}
}
