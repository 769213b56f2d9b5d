package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Evaluator/models"
)

// fakeStore is an in-memory stand-in for the result store.
type fakeStore struct {
	records []models.PredictionRecord
	events  []models.UsageEvent
}

func (s *fakeStore) MaxExampleID(_ context.Context, runID string, batchSize int) (int, bool, error) {
	max := -1
	for _, rec := range s.records {
		if rec.RunID == runID && rec.BatchSize == batchSize && rec.ExampleID > max {
			max = rec.ExampleID
		}
	}
	if max < 0 {
		return 0, false, nil
	}
	return max, true, nil
}

func (s *fakeStore) AppendChunk(_ context.Context, recs []models.PredictionRecord, ev models.UsageEvent) error {
	s.records = append(s.records, recs...)
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) AppendUsage(_ context.Context, ev models.UsageEvent) error {
	s.events = append(s.events, ev)
	return nil
}

// fakeParser scripts responses per call.
type fakeParser struct {
	calls      int
	failOnCall map[int]error // 0-based call index -> error, consumed once
	countDelta int           // offset applied to the returned prediction count
	echoIDs    bool
	usage      models.Usage
}

func (p *fakeParser) Parse(_ context.Context, items []models.PostInput) ([]models.ParsedPrediction, models.Usage, error) {
	call := p.calls
	p.calls++
	if err, ok := p.failOnCall[call]; ok {
		delete(p.failOnCall, call)
		return nil, models.Usage{}, err
	}

	count := len(items) + p.countDelta
	preds := make([]models.ParsedPrediction, count)
	for i := range preds {
		preds[i] = models.ParsedPrediction{BearBull: i}
		if p.echoIDs && i < len(items) {
			preds[i].ID = fmt.Sprintf("echo-%s", items[i].PostText)
		}
	}
	return preds, p.usage, nil
}

func makeEntries(n int) []models.DatasetEntry {
	entries := make([]models.DatasetEntry, n)
	for i := range entries {
		entries[i] = models.DatasetEntry{
			ID:            models.ID(fmt.Sprintf("id-%d", i)),
			PostText:      fmt.Sprintf("post %d", i),
			PostCreatedAt: time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC),
			BearBull:      i,
		}
	}
	return entries
}

func exampleIDs(records []models.PredictionRecord) []int {
	ids := make([]int, len(records))
	for i, rec := range records {
		ids[i] = rec.ExampleID
	}
	return ids
}

func TestRunLanePartitionsIntoChunks(t *testing.T) {
	store := &fakeStore{}
	parser := &fakeParser{usage: models.Usage{InputTokens: 100, OutputTokens: 10, Requests: 1}}
	r := New(store, parser, "test-model")

	entries := makeEntries(10)
	require.NoError(t, r.RunLane(context.Background(), "run-1", entries, 4))

	// chunks of 4, 4 and a short tail of 2
	assert.Equal(t, 3, parser.calls)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, exampleIDs(store.records))
	require.Len(t, store.events, 3)
	for _, ev := range store.events {
		assert.True(t, ev.Succeeded)
		assert.Equal(t, "test-model", ev.ModelName)
		assert.Equal(t, int64(100), ev.InputTokens)
		assert.Equal(t, 4, ev.BatchSize)
	}
	assert.Equal(t, []int{0, 4, 8}, []int{store.events[0].BatchID, store.events[1].BatchID, store.events[2].BatchID})
}

func TestRunLaneResumptionIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	parser := &fakeParser{}
	r := New(store, parser, "test-model")

	entries := makeEntries(7)
	require.NoError(t, r.RunLane(context.Background(), "run-1", entries, 3))

	recordsAfterFirst := len(store.records)
	maxBefore, found, err := store.MaxExampleID(context.Background(), "run-1", 3)
	require.NoError(t, err)
	require.True(t, found)

	// re-invoking the completed lane must not touch the store
	require.NoError(t, r.RunLane(context.Background(), "run-1", entries, 3))

	assert.Len(t, store.records, recordsAfterFirst)
	maxAfter, _, err := store.MaxExampleID(context.Background(), "run-1", 3)
	require.NoError(t, err)
	assert.Equal(t, maxBefore, maxAfter)
}

func TestRunLaneFailureThenResumeMatchesUninterruptedRun(t *testing.T) {
	entries := makeEntries(9)

	// reference: uninterrupted run
	cleanStore := &fakeStore{}
	require.NoError(t, New(cleanStore, &fakeParser{}, "m").RunLane(context.Background(), "run-1", entries, 3))

	// failing run: second chunk errors once, then the lane is re-invoked
	store := &fakeStore{}
	parser := &fakeParser{failOnCall: map[int]error{1: errors.New("connection reset")}}
	r := New(store, parser, "m")

	err := r.RunLane(context.Background(), "run-1", entries, 3)
	require.Error(t, err)

	// only the first chunk persisted, plus the failed attempt's event
	assert.Equal(t, []int{0, 1, 2}, exampleIDs(store.records))
	require.Len(t, store.events, 2)
	assert.True(t, store.events[0].Succeeded)
	assert.False(t, store.events[1].Succeeded)
	assert.Equal(t, int64(0), store.events[1].InputTokens)
	assert.Equal(t, 3, store.events[1].BatchID)

	// resume picks up exactly at the failed chunk's first index
	require.NoError(t, r.RunLane(context.Background(), "run-1", entries, 3))
	assert.Equal(t, exampleIDs(cleanStore.records), exampleIDs(store.records))
}

func TestRunLaneCountMismatchIsFatal(t *testing.T) {
	store := &fakeStore{}
	parser := &fakeParser{countDelta: -1}
	r := New(store, parser, "m")

	err := r.RunLane(context.Background(), "run-1", makeEntries(4), 4)
	require.Error(t, err)

	var mismatch *CountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Want)
	assert.Equal(t, 3, mismatch.Got)

	// nothing persisted except the failed usage event
	assert.Empty(t, store.records)
	require.Len(t, store.events, 1)
	assert.False(t, store.events[0].Succeeded)
}

func TestRunLaneNoOpWhenComplete(t *testing.T) {
	entries := makeEntries(3)

	store := &fakeStore{}
	require.NoError(t, New(store, &fakeParser{}, "m").RunLane(context.Background(), "run-1", entries, 3))

	parser := &fakeParser{}
	require.NoError(t, New(store, parser, "m").RunLane(context.Background(), "run-1", entries, 3))
	assert.Zero(t, parser.calls)
}

func TestRunLaneRejectsNonPositiveBatchSize(t *testing.T) {
	r := New(&fakeStore{}, &fakeParser{}, "m")
	assert.Error(t, r.RunLane(context.Background(), "run-1", makeEntries(1), 0))
}

func TestRunProcessesAllBatchSizes(t *testing.T) {
	store := &fakeStore{}
	parser := &fakeParser{}
	r := New(store, parser, "m")

	entries := makeEntries(4)
	require.NoError(t, r.Run(context.Background(), "run-1", entries, []int{1, 2}))

	// 4 single calls + 2 batch calls
	assert.Equal(t, 6, parser.calls)
	assert.Len(t, store.records, 8)

	var lanes []int
	for _, ev := range store.events {
		lanes = append(lanes, ev.BatchSize)
	}
	assert.Equal(t, []int{1, 1, 1, 1, 2, 2}, lanes)
}

func TestResolvePredictionIDFallbackChain(t *testing.T) {
	entry := models.DatasetEntry{ID: "entry-9"}

	assert.Equal(t, "svc-1", resolvePredictionID(models.ParsedPrediction{ID: "svc-1"}, entry, 7))
	assert.Equal(t, "entry-9", resolvePredictionID(models.ParsedPrediction{}, entry, 7))
	assert.Equal(t, "7", resolvePredictionID(models.ParsedPrediction{}, models.DatasetEntry{}, 7))
}

func TestRunLaneUsesEchoedIDs(t *testing.T) {
	store := &fakeStore{}
	parser := &fakeParser{echoIDs: true}
	r := New(store, parser, "m")

	require.NoError(t, r.RunLane(context.Background(), "run-1", makeEntries(2), 2))
	require.Len(t, store.records, 2)
	assert.Equal(t, "echo-post 0", store.records[0].PredictionID)
	assert.Equal(t, "echo-post 1", store.records[1].PredictionID)
}
