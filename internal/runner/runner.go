package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Evaluator/models"
)

// Store is the slice of the result store the runner needs. All resumption
// state lives behind it; the runner keeps no index cache of its own.
type Store interface {
	MaxExampleID(ctx context.Context, runID string, batchSize int) (int, bool, error)
	AppendChunk(ctx context.Context, recs []models.PredictionRecord, ev models.UsageEvent) error
	AppendUsage(ctx context.Context, ev models.UsageEvent) error
}

// Parser issues one extraction call for a chunk of posts.
type Parser interface {
	Parse(ctx context.Context, items []models.PostInput) ([]models.ParsedPrediction, models.Usage, error)
}

// CountMismatchError reports a batch response whose prediction count does not
// equal the chunk length. The chunk is not retried automatically.
type CountMismatchError struct {
	BatchID int
	Want    int
	Got     int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("batch %d: service returned %d predictions for %d posts", e.BatchID, e.Got, e.Want)
}

// Runner drives a dataset through the extraction service in resumable,
// fixed-size chunks and records every outcome in the store.
type Runner struct {
	store     Store
	parser    Parser
	modelName string
	logger    zerolog.Logger
}

// New creates a runner for the given store, parser and model name. The model
// name only labels usage events; the service decides what actually runs.
func New(store Store, parser Parser, modelName string) *Runner {
	return &Runner{
		store:     store,
		parser:    parser,
		modelName: modelName,
		logger:    log.With().Str("component", "runner").Logger(),
	}
}

// Run processes every batch size in order, halting on the first failed lane.
// Each (runID, batchSize) lane is independently resumable: re-invoking with
// the same run id continues exactly after the last fully persisted chunk.
func (r *Runner) Run(ctx context.Context, runID string, entries []models.DatasetEntry, batchSizes []int) error {
	for _, batchSize := range batchSizes {
		if err := r.RunLane(ctx, runID, entries, batchSize); err != nil {
			return err
		}
	}
	return nil
}

// RunLane processes one (runID, batchSize) lane. Chunks are strictly
// sequential within a lane; distinct lanes may run concurrently since the
// store is the only shared state.
func (r *Runner) RunLane(ctx context.Context, runID string, entries []models.DatasetEntry, batchSize int) error {
	if batchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	logger := r.logger.With().Str("run_id", runID).Int("batch_size", batchSize).Logger()

	maxID, found, err := r.store.MaxExampleID(ctx, runID, batchSize)
	if err != nil {
		return fmt.Errorf("reading high-water mark: %w", err)
	}

	start := 0
	if found {
		start = maxID + 1
	}
	if start >= len(entries) {
		logger.Info().Int("examples", len(entries)).Msg("Lane already complete")
		return nil
	}

	logger.Info().Int("start", start).Int("examples", len(entries)).Msg("Processing lane")

	for i := start; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := r.processChunk(ctx, runID, entries, i, end, batchSize); err != nil {
			return err
		}
	}

	logger.Info().Msg("Lane complete")
	return nil
}

func (r *Runner) processChunk(ctx context.Context, runID string, entries []models.DatasetEntry, start, end, batchSize int) error {
	chunk := entries[start:end]
	items := make([]models.PostInput, len(chunk))
	for j, entry := range chunk {
		items[j] = entry.Input()
	}

	began := time.Now()
	preds, usage, callErr := r.parser.Parse(ctx, items)
	latency := time.Since(began).Milliseconds()

	if callErr == nil && len(preds) != len(chunk) {
		callErr = &CountMismatchError{BatchID: start, Want: len(chunk), Got: len(preds)}
	}

	if callErr != nil {
		r.logger.Error().Err(callErr).Int("batch_id", start).Msg("Chunk failed")
		// The attempt is recorded either way; usage counters stay zero.
		failed := models.UsageEvent{
			ModelName: r.modelName,
			BatchID:   start,
			BatchSize: batchSize,
			LatencyMS: latency,
			Succeeded: false,
		}
		if storeErr := r.store.AppendUsage(ctx, failed); storeErr != nil {
			return fmt.Errorf("recording failed usage event: %w", storeErr)
		}
		return fmt.Errorf("chunk starting at example %d: %w", start, callErr)
	}

	records := make([]models.PredictionRecord, len(preds))
	for j, pred := range preds {
		records[j] = models.PredictionRecord{
			RunID:        runID,
			BatchSize:    batchSize,
			BatchID:      start,
			ExampleID:    start + j,
			PredictionID: resolvePredictionID(pred, chunk[j], start+j),
			Payload:      pred,
		}
	}

	event := models.UsageEvent{
		ModelName:        r.modelName,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		RequestCount:     usage.Requests,
		BatchID:          start,
		BatchSize:        batchSize,
		LatencyMS:        latency,
		Succeeded:        true,
	}

	if err := r.store.AppendChunk(ctx, records, event); err != nil {
		return fmt.Errorf("persisting chunk starting at example %d: %w", start, err)
	}

	r.logger.Debug().Int("batch_id", start).Int("predictions", len(records)).Int64("latency_ms", latency).Msg("Chunk persisted")
	return nil
}

// resolvePredictionID picks the identifier used to join against annotations:
// the service's echoed id, then the dataset entry's id, then the absolute
// example index as a last resort.
func resolvePredictionID(pred models.ParsedPrediction, entry models.DatasetEntry, exampleID int) string {
	if pred.ID != "" {
		return pred.ID
	}
	if entry.ID != "" {
		return string(entry.ID)
	}
	return strconv.Itoa(exampleID)
}
