package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Evaluator/models"
)

const sampleDataset = `[
	{
		"id": 1,
		"post_text": "BTC breaking $80,000 before end of year!",
		"post_created_at": "2025-08-25T12:00:00Z",
		"target_type": "pct_change",
		"extracted_value": {"asset": "BTC", "currency": "USD", "price": 80000},
		"bear_bull": 78,
		"timeframe": {"explicit": true, "start": "2025-08-25T12:00:00Z", "end": "2025-12-31T23:59:59Z"},
		"notes": ["end of year converted to December 31st"]
	},
	{
		"id": "tweet-2",
		"post_text": "no predictions anymore",
		"post_created_at": "2025-08-25T13:00:00Z",
		"extracted_value": null,
		"bear_bull": -20,
		"timeframe": {"explicit": false, "start": null, "end": null},
		"notes": []
	}
]`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annotated-dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesEntriesInOrder(t *testing.T) {
	entries, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, models.ID("1"), entries[0].ID)
	assert.Equal(t, models.ID("tweet-2"), entries[1].ID)
	assert.Equal(t, 78, entries[0].BearBull)
	assert.Nil(t, entries[1].ExtractedValue)
}

func TestLoadDerivesTargetTypeFromFields(t *testing.T) {
	// the stored target_type says pct_change, but the fields say price
	entries, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)

	assert.Equal(t, models.TargetTypePrice, entries[0].Annotation().TargetType())
	assert.Equal(t, models.TargetTypeNone, entries[1].Annotation().TargetType())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	_, err := Load(writeDataset(t, `{"not": "an array"}`))
	assert.Error(t, err)
}

func TestAnnotationsKeyedByID(t *testing.T) {
	entries, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)

	annotations := Annotations(entries)
	require.Len(t, annotations, 2)

	first, ok := annotations["1"]
	require.True(t, ok)
	assert.Equal(t, models.TargetTypePrice, first.TargetType())

	second, ok := annotations["tweet-2"]
	require.True(t, ok)
	assert.Equal(t, -20, second.BearBull)
}
