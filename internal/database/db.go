package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/Alias1177/Evaluator/models"
)

// DB is the durable result store: an append-only log of prediction records
// and usage events. No update or delete statements exist for these tables.
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// The database may still be starting; retry the first ping with backoff.
	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(db.Ping, strategy); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prediction_results (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			batch_size INT NOT NULL,
			batch_id INT NOT NULL,
			example_id INT NOT NULL,
			prediction_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS token_usage (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			model_name TEXT NOT NULL,
			input_tokens BIGINT NOT NULL,
			output_tokens BIGINT NOT NULL,
			cache_read_tokens BIGINT NOT NULL,
			cache_write_tokens BIGINT NOT NULL,
			request_count INT NOT NULL,
			batch_id INT NOT NULL,
			batch_size INT NOT NULL,
			latency_ms BIGINT NOT NULL,
			succeeded BOOLEAN NOT NULL
		)
	`)
	return err
}

// AppendPrediction durably writes a single prediction record.
func (db *DB) AppendPrediction(ctx context.Context, rec models.PredictionRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO prediction_results (
			run_id, batch_size, batch_id, example_id, prediction_id, payload
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.RunID, rec.BatchSize, rec.BatchID, rec.ExampleID, rec.PredictionID, payload)

	return err
}

// AppendUsage durably writes a single usage event.
func (db *DB) AppendUsage(ctx context.Context, ev models.UsageEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO token_usage (
			model_name, input_tokens, output_tokens, cache_read_tokens,
			cache_write_tokens, request_count, batch_id, batch_size, latency_ms, succeeded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.ModelName, ev.InputTokens, ev.OutputTokens, ev.CacheReadTokens,
		ev.CacheWriteTokens, ev.RequestCount, ev.BatchID, ev.BatchSize, ev.LatencyMS, ev.Succeeded)

	return err
}

// AppendChunk writes all records of one successfully parsed chunk plus its
// usage event in a single transaction, so the resumption high-water mark can
// never observe a partially persisted chunk.
func (db *DB) AppendChunk(ctx context.Context, recs []models.PredictionRecord, ev models.UsageEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("encoding payload for example %d: %w", rec.ExampleID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prediction_results (
				run_id, batch_size, batch_id, example_id, prediction_id, payload
			) VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.RunID, rec.BatchSize, rec.BatchID, rec.ExampleID, rec.PredictionID, payload); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_usage (
			model_name, input_tokens, output_tokens, cache_read_tokens,
			cache_write_tokens, request_count, batch_id, batch_size, latency_ms, succeeded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.ModelName, ev.InputTokens, ev.OutputTokens, ev.CacheReadTokens,
		ev.CacheWriteTokens, ev.RequestCount, ev.BatchID, ev.BatchSize, ev.LatencyMS, ev.Succeeded); err != nil {
		return err
	}

	return tx.Commit()
}

// MaxExampleID returns the resumption high-water mark for a run/batch-size
// lane. The second return value is false when the lane has no records yet.
func (db *DB) MaxExampleID(ctx context.Context, runID string, batchSize int) (int, bool, error) {
	var maxID sql.NullInt64

	err := db.QueryRowContext(ctx, `
		SELECT MAX(example_id)
		FROM prediction_results
		WHERE run_id = $1 AND batch_size = $2
	`, runID, batchSize).Scan(&maxID)
	if err != nil {
		return 0, false, err
	}

	if !maxID.Valid {
		return 0, false, nil
	}
	return int(maxID.Int64), true, nil
}

// PredictionFilter narrows ScanPredictions; zero values mean no filtering.
type PredictionFilter struct {
	RunID     string
	BatchSize int
}

// ScanPredictions returns prediction records ordered by run, batch size and
// example index, which is also their persisted order within each lane.
func (db *DB) ScanPredictions(ctx context.Context, filter PredictionFilter) ([]models.PredictionRecord, error) {
	query := `
		SELECT run_id, batch_size, batch_id, example_id, prediction_id, payload, created_at
		FROM prediction_results
		WHERE ($1 = '' OR run_id = $1)
		  AND ($2 = 0 OR batch_size = $2)
		ORDER BY run_id, batch_size, example_id
	`

	rows, err := db.QueryContext(ctx, query, filter.RunID, filter.BatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.PredictionRecord
	for rows.Next() {
		var rec models.PredictionRecord
		var payload []byte
		if err := rows.Scan(
			&rec.RunID, &rec.BatchSize, &rec.BatchID, &rec.ExampleID,
			&rec.PredictionID, &payload, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload for example %d: %w", rec.ExampleID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ScanUsage returns all usage events in insertion order.
func (db *DB) ScanUsage(ctx context.Context) ([]models.UsageEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT model_name, input_tokens, output_tokens, cache_read_tokens,
		       cache_write_tokens, request_count, batch_id, batch_size,
		       latency_ms, succeeded, created_at
		FROM token_usage
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.UsageEvent
	for rows.Next() {
		var ev models.UsageEvent
		if err := rows.Scan(
			&ev.ModelName, &ev.InputTokens, &ev.OutputTokens, &ev.CacheReadTokens,
			&ev.CacheWriteTokens, &ev.RequestCount, &ev.BatchID, &ev.BatchSize,
			&ev.LatencyMS, &ev.Succeeded, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
