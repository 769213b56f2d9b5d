package evaluate

import (
	"errors"
	"sort"

	"github.com/Alias1177/Evaluator/internal/stats"
)

// ErrEmptyGroup marks a group with no aligned pairs; callers report it as a
// notice and continue with other groups.
var ErrEmptyGroup = errors.New("no aligned pairs in group")

// ClassificationMetrics holds accuracy plus macro-averaged precision, recall
// and F1 over the union of true and predicted label sets.
type ClassificationMetrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// ConfusionMatrix counts true label (row) versus predicted label (column).
// Labels are the lexicographically sorted union of both sides.
type ConfusionMatrix struct {
	Labels []string
	Counts [][]int
}

// GroupMetrics is the agreement summary for one (run, batch size) group.
type GroupMetrics struct {
	Pairs               int
	TargetType          ClassificationMetrics
	Confusion           ConfusionMatrix
	ExtractedValueExact float64
	TimeframeExact      float64
	BearBullSpearman    float64
}

// ComputeGroup computes all agreement metrics for one group of aligned pairs.
func ComputeGroup(pairs []AlignedPair) (GroupMetrics, error) {
	if len(pairs) == 0 {
		return GroupMetrics{}, ErrEmptyGroup
	}

	yTrue := make([]string, len(pairs))
	yPred := make([]string, len(pairs))
	trueBearBull := make([]float64, len(pairs))
	predBearBull := make([]float64, len(pairs))
	valueMatches := 0
	timeframeMatches := 0

	for i, pair := range pairs {
		yTrue[i] = string(pair.Annotation.TargetType())
		yPred[i] = string(pair.Prediction.TargetType())
		trueBearBull[i] = float64(pair.Annotation.BearBull)
		predBearBull[i] = float64(pair.Prediction.BearBull)

		if pair.Annotation.ExtractedValue.Canonical() == pair.Prediction.ExtractedValue.Canonical() {
			valueMatches++
		}
		if pair.Annotation.Timeframe.Canonical() == pair.Prediction.Timeframe.Canonical() {
			timeframeMatches++
		}
	}

	n := float64(len(pairs))
	return GroupMetrics{
		Pairs:               len(pairs),
		TargetType:          Classification(yTrue, yPred),
		Confusion:           Confusion(yTrue, yPred),
		ExtractedValueExact: float64(valueMatches) / n,
		TimeframeExact:      float64(timeframeMatches) / n,
		BearBullSpearman:    stats.Spearman(trueBearBull, predBearBull),
	}, nil
}

// labelUniverse returns the sorted union of true and predicted labels. A
// label seen on only one side still contributes to the macro averages.
func labelUniverse(yTrue, yPred []string) []string {
	seen := make(map[string]bool)
	for _, l := range yTrue {
		seen[l] = true
	}
	for _, l := range yPred {
		seen[l] = true
	}

	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Classification computes accuracy and macro precision/recall/F1. Per-label
// ratios with an empty denominator count as zero, matching the usual
// zero-division convention for macro averaging.
func Classification(yTrue, yPred []string) ClassificationMetrics {
	labels := labelUniverse(yTrue, yPred)

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	var precisionSum, recallSum, f1Sum float64
	for _, label := range labels {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yPred[i] == label && yTrue[i] == label:
				tp++
			case yPred[i] == label:
				fp++
			case yTrue[i] == label:
				fn++
			}
		}

		var precision, recall, f1 float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		precisionSum += precision
		recallSum += recall
		f1Sum += f1
	}

	count := float64(len(labels))
	return ClassificationMetrics{
		Accuracy:  float64(correct) / float64(len(yTrue)),
		Precision: precisionSum / count,
		Recall:    recallSum / count,
		F1:        f1Sum / count,
	}
}

// Confusion builds the confusion matrix over the unioned label set.
func Confusion(yTrue, yPred []string) ConfusionMatrix {
	labels := labelUniverse(yTrue, yPred)

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		counts[index[yTrue[i]]][index[yPred[i]]]++
	}

	return ConfusionMatrix{Labels: labels, Counts: counts}
}
