package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Evaluator/config"
	"github.com/Alias1177/Evaluator/internal/api/parser"
	"github.com/Alias1177/Evaluator/internal/database"
	"github.com/Alias1177/Evaluator/internal/dataset"
	"github.com/Alias1177/Evaluator/internal/runner"
)

func main() {
	batchSizesFlag := flag.String("batch-sizes", "1,16", "comma-separated batch sizes to evaluate")
	runIDFlag := flag.String("run-id", "", "existing run identifier to resume; defaults to a new UUID")
	datasetFlag := flag.String("dataset", "", "path to the annotated dataset (overrides DATASET_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.LogLevel)

	batchSizes, err := parseBatchSizes(*batchSizesFlag)
	if err != nil {
		log.Fatal().Err(err).Str("batch_sizes", *batchSizesFlag).Msg("Invalid batch sizes")
	}

	runID := *runIDFlag
	if runID == "" {
		runID = uuid.NewString()
		log.Info().Str("run_id", runID).Msg("Starting new run")
	} else {
		log.Info().Str("run_id", runID).Msg("Resuming run")
	}

	datasetPath := cfg.DatasetPath
	if *datasetFlag != "" {
		datasetPath = *datasetFlag
	}
	entries, err := dataset.Load(datasetPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", datasetPath).Msg("Failed to load dataset")
	}
	log.Info().Int("examples", len(entries)).Str("path", datasetPath).Msg("Dataset loaded")

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

	client := parser.NewClient(parser.ClientOptions{
		BaseURL:        cfg.ParserAPIURL,
		SingleTimeout:  time.Duration(cfg.SingleTimeout) * time.Second,
		BatchTimeout:   time.Duration(cfg.BatchTimeout) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
	})

	r := runner.New(db, client, cfg.ModelName)
	if err := r.Run(context.Background(), runID, entries, batchSizes); err != nil {
		log.Fatal().Err(err).Str("run_id", runID).Msg("Run halted; re-invoke with the same run id to resume")
	}

	log.Info().Str("run_id", runID).Msg("Run complete")
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(lvl)
}

func parseBatchSizes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}
