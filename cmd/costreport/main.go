package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Evaluator/config"
	"github.com/Alias1177/Evaluator/internal/database"
	"github.com/Alias1177/Evaluator/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.LogLevel)

	db, err := database.New(database.ConnectionParams{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	events, err := db.ScanUsage(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to scan usage events")
	}
	if len(events) == 0 {
		log.Warn().Msg("No usage events recorded yet")
		return
	}

	rows := report.Build(events, report.Rates{
		InputPerToken:  cfg.InputTokenRate,
		OutputPerToken: cfg.OutputTokenRate,
	})
	report.Print(os.Stdout, rows)
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(lvl)
}
