package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/rapprochement/rapprochement-api/internal/config"
	"github.com/rapprochement/rapprochement-api/internal/database"
	"github.com/rapprochement/rapprochement-api/internal/logger"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log := logger.New("", "info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Warn().Msg(".env file not found, using system environment variables")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, database.Options{
		URL:            cfg.DatabaseURL,
		MaxConnections: 1,
		ConnectTimeout: cfg.DBConnectionTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		return
	}
	log.Info().Msg("Schema applied")
}
