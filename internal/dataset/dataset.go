package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Alias1177/Evaluator/models"
)

// Load reads the annotated dataset from a JSON file. Entry order is the
// execution order the batch runner partitions into chunks.
func Load(path string) ([]models.DatasetEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	var entries []models.DatasetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding dataset %s: %w", path, err)
	}
	return entries, nil
}

// Annotations builds the ground-truth lookup keyed by entry id. Annotations
// are immutable for the duration of an evaluation run.
func Annotations(entries []models.DatasetEntry) map[string]models.ParsedPrediction {
	annotations := make(map[string]models.ParsedPrediction, len(entries))
	for _, entry := range entries {
		annotations[string(entry.ID)] = entry.Annotation()
	}
	return annotations
}
