package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Evaluator/config"
	"github.com/Alias1177/Evaluator/internal/database"
	"github.com/Alias1177/Evaluator/internal/dataset"
	"github.com/Alias1177/Evaluator/internal/evaluate"
)

func main() {
	runIDFlag := flag.String("run-id", "", "restrict evaluation to one run id (default: all runs)")
	datasetFlag := flag.String("dataset", "", "path to the annotated dataset (overrides DATASET_PATH)")
	outFlag := flag.String("out", "", "directory for confusion matrix images (overrides REPORT_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.LogLevel)

	datasetPath := cfg.DatasetPath
	if *datasetFlag != "" {
		datasetPath = *datasetFlag
	}
	entries, err := dataset.Load(datasetPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", datasetPath).Msg("Failed to load dataset")
	}
	annotations := dataset.Annotations(entries)

	outDir := cfg.ReportDir
	if *outFlag != "" {
		outDir = *outFlag
	}

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

	ctx := context.Background()
	records, err := db.ScanPredictions(ctx, database.PredictionFilter{RunID: *runIDFlag})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to scan prediction records")
	}
	if len(records) == 0 {
		log.Warn().Msg("No prediction records found; run the batch runner first")
		return
	}

	groups, keys, err := evaluate.Align(records, annotations)
	if err != nil {
		log.Fatal().Err(err).Msg("Alignment failed")
	}

	for _, key := range keys {
		metrics, err := evaluate.ComputeGroup(groups[key])
		if err != nil {
			if errors.Is(err, evaluate.ErrEmptyGroup) {
				log.Warn().Str("group", key.String()).Msg("Empty group, no metrics")
				continue
			}
			log.Fatal().Err(err).Str("group", key.String()).Msg("Metric computation failed")
		}

		printGroup(key, metrics)

		imagePath := filepath.Join(outDir, strconv.Itoa(key.BatchSize)+".png")
		title := fmt.Sprintf("batch_size=%d", key.BatchSize)
		if err := evaluate.SaveConfusionPNG(metrics.Confusion, imagePath, title); err != nil {
			log.Fatal().Err(err).Str("path", imagePath).Msg("Failed to write confusion matrix image")
		}
		log.Info().Str("path", imagePath).Msg("Confusion matrix image written")
	}
}

func printGroup(key evaluate.GroupKey, m evaluate.GroupMetrics) {
	fmt.Println(key)
	fmt.Println("target_type")
	fmt.Printf("  accuracy: %.4f\n", m.TargetType.Accuracy)
	fmt.Printf("  precision: %.4f\n", m.TargetType.Precision)
	fmt.Printf("  recall: %.4f\n", m.TargetType.Recall)
	fmt.Printf("  f1: %.4f\n", m.TargetType.F1)
	fmt.Println("timeframe")
	fmt.Printf("  exact_match: %.4f\n", m.TimeframeExact)
	fmt.Println("extracted_value")
	fmt.Printf("  exact_match: %.4f\n", m.ExtractedValueExact)
	fmt.Println("bear_bull")
	fmt.Printf("  spearman: %.4f\n", m.BearBullSpearman)
	fmt.Println()
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(lvl)
}
