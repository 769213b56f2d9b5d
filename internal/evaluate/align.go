package evaluate

import (
	"fmt"
	"sort"

	"github.com/Alias1177/Evaluator/models"
)

// GroupKey identifies one evaluation group: all predictions a lane produced.
type GroupKey struct {
	RunID     string
	BatchSize int
}

func (k GroupKey) String() string {
	return fmt.Sprintf("run_id=%s batch_size=%d", k.RunID, k.BatchSize)
}

// AlignedPair joins one persisted prediction with its ground-truth annotation.
type AlignedPair struct {
	PredictionID string
	Prediction   models.ParsedPrediction
	Annotation   models.ParsedPrediction
}

// MissingAnnotationError reports a persisted prediction with no ground truth.
// Evaluation aborts rather than silently skipping the example, since dropping
// unlabeled predictions would bias every metric.
type MissingAnnotationError struct {
	PredictionID string
}

func (e *MissingAnnotationError) Error() string {
	return fmt.Sprintf("no annotation found for prediction id %q", e.PredictionID)
}

// Align joins prediction records to annotations by prediction id, grouped by
// (run, batch size). Within a group, pairs keep the persisted order
// (ascending example id). Keys come back sorted for stable iteration.
func Align(records []models.PredictionRecord, annotations map[string]models.ParsedPrediction) (map[GroupKey][]AlignedPair, []GroupKey, error) {
	groups := make(map[GroupKey][]AlignedPair)
	var keys []GroupKey

	for _, rec := range records {
		annotation, ok := annotations[rec.PredictionID]
		if !ok {
			return nil, nil, &MissingAnnotationError{PredictionID: rec.PredictionID}
		}

		key := GroupKey{RunID: rec.RunID, BatchSize: rec.BatchSize}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], AlignedPair{
			PredictionID: rec.PredictionID,
			Prediction:   rec.Payload,
			Annotation:   annotation,
		})
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RunID != keys[j].RunID {
			return keys[i].RunID < keys[j].RunID
		}
		return keys[i].BatchSize < keys[j].BatchSize
	})

	return groups, keys, nil
}
