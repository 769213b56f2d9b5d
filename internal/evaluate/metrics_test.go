package evaluate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Evaluator/models"
)

func priceValue(price float64) *models.ExtractedValue {
	return &models.ExtractedValue{
		Kind:     models.TargetTypePrice,
		Asset:    "BTC",
		Currency: "USD",
		Price:    price,
	}
}

func rangeValue(min, max float64) *models.ExtractedValue {
	return &models.ExtractedValue{
		Kind:     models.TargetTypeRange,
		Asset:    "ETH",
		Currency: "USD",
		Min:      min,
		Max:      max,
	}
}

func pair(annotation, prediction models.ParsedPrediction) AlignedPair {
	return AlignedPair{Annotation: annotation, Prediction: prediction}
}

func TestClassificationHandComputed(t *testing.T) {
	yTrue := []string{"a", "a", "b"}
	yPred := []string{"a", "b", "b"}

	m := Classification(yTrue, yPred)

	// label a: tp=1 fp=0 fn=1 -> p=1, r=0.5, f1=2/3
	// label b: tp=1 fp=1 fn=0 -> p=0.5, r=1, f1=2/3
	assert.InDelta(t, 2.0/3.0, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.75, m.Precision, 1e-9)
	assert.InDelta(t, 0.75, m.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.F1, 1e-9)
}

func TestClassificationLabelUniverseIncludesBothSides(t *testing.T) {
	// "c" only ever predicted, "a" only ever true; both still count
	m := Classification([]string{"a", "a"}, []string{"c", "a"})

	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)
	// a: tp=1 fp=0 fn=1 -> p=1, r=0.5; c: tp=0 fp=1 fn=0 -> p=0, r=0
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.25, m.Recall, 1e-9)
}

func TestConfusionMatrixCountsAndOrdering(t *testing.T) {
	cm := Confusion([]string{"b", "a", "b"}, []string{"b", "a", "a"})

	require.Equal(t, []string{"a", "b"}, cm.Labels)
	assert.Equal(t, [][]int{
		{1, 0}, // true a: predicted a once
		{1, 1}, // true b: predicted a once, b once
	}, cm.Counts)
}

func TestComputeGroupEmptyGroup(t *testing.T) {
	_, err := ComputeGroup(nil)
	assert.ErrorIs(t, err, ErrEmptyGroup)
}

func TestComputeGroupExactMatchRates(t *testing.T) {
	start := time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)
	tf := models.Timeframe{Explicit: true, Start: &start}

	pairs := []AlignedPair{
		// identical payloads
		pair(
			models.ParsedPrediction{ExtractedValue: priceValue(80000), BearBull: 78, Timeframe: tf},
			models.ParsedPrediction{ExtractedValue: priceValue(80000), BearBull: 60, Timeframe: tf},
		),
		// differing range bound and timeframe
		pair(
			models.ParsedPrediction{ExtractedValue: rangeValue(100, 200), BearBull: 15, Timeframe: tf},
			models.ParsedPrediction{ExtractedValue: rangeValue(100, 201), BearBull: 10, Timeframe: models.Timeframe{Explicit: false}},
		),
	}

	m, err := ComputeGroup(pairs)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Pairs)
	assert.InDelta(t, 0.5, m.ExtractedValueExact, 1e-9)
	assert.InDelta(t, 0.5, m.TimeframeExact, 1e-9)
	// both target types agree
	assert.InDelta(t, 1.0, m.TargetType.Accuracy, 1e-9)
}

func TestComputeGroupSpearmanPerfectInverse(t *testing.T) {
	bearBulls := [][2]int{{10, 30}, {20, 20}, {30, 10}}

	var pairs []AlignedPair
	for _, bb := range bearBulls {
		pairs = append(pairs, pair(
			models.ParsedPrediction{ExtractedValue: priceValue(1), BearBull: bb[0]},
			models.ParsedPrediction{ExtractedValue: priceValue(1), BearBull: bb[1]},
		))
	}

	m, err := ComputeGroup(pairs)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, m.BearBullSpearman, 1e-9)
}

func TestComputeGroupSpearmanConstantIsNaN(t *testing.T) {
	var pairs []AlignedPair
	for i := 0; i < 3; i++ {
		pairs = append(pairs, pair(
			models.ParsedPrediction{BearBull: 50},
			models.ParsedPrediction{BearBull: i * 10},
		))
	}

	m, err := ComputeGroup(pairs)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.BearBullSpearman))
}

func TestComputeGroupNoneVersusValue(t *testing.T) {
	pairs := []AlignedPair{
		pair(
			models.ParsedPrediction{ExtractedValue: nil, BearBull: 0},
			models.ParsedPrediction{ExtractedValue: priceValue(80000), BearBull: 10},
		),
		pair(
			models.ParsedPrediction{ExtractedValue: nil, BearBull: -20},
			models.ParsedPrediction{ExtractedValue: nil, BearBull: -30},
		),
	}

	m, err := ComputeGroup(pairs)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.TargetType.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, m.ExtractedValueExact, 1e-9)
	assert.Equal(t, []string{"none", "target_price"}, m.Confusion.Labels)
}
