package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Alias1177/Evaluator/internal/stats"
	"github.com/Alias1177/Evaluator/models"
)

// Rates is the injected per-token pricing used to derive request costs.
type Rates struct {
	InputPerToken  float64
	OutputPerToken float64
}

// Row is one aggregated (model, batch size) summary. Latencies are seconds.
type Row struct {
	ModelName   string
	BatchSize   int
	Requests    int
	SuccessRate float64

	LatencyMeanSec float64
	LatencyP50Sec  float64
	LatencyP95Sec  float64

	InputTokensMean float64
	InputCostMean   float64
	InputCostP50    float64
	InputCostP95    float64

	OutputTokensMean float64
	OutputCostMean   float64
	OutputCostP50    float64
	OutputCostP95    float64
}

type groupKey struct {
	model     string
	batchSize int
}

// Build aggregates usage events into rows grouped by (model name, batch
// size), sorted by model then batch size. Keys with no events simply have no
// row; nothing is zero-filled.
func Build(events []models.UsageEvent, rates Rates) []Row {
	groups := make(map[groupKey][]models.UsageEvent)
	for _, ev := range events {
		key := groupKey{model: ev.ModelName, batchSize: ev.BatchSize}
		groups[key] = append(groups[key], ev)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].model != keys[j].model {
			return keys[i].model < keys[j].model
		}
		return keys[i].batchSize < keys[j].batchSize
	})

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, buildRow(key, groups[key], rates))
	}
	return rows
}

func buildRow(key groupKey, events []models.UsageEvent, rates Rates) Row {
	latencies := make([]float64, len(events))
	inputTokens := make([]float64, len(events))
	outputTokens := make([]float64, len(events))
	inputCosts := make([]float64, len(events))
	outputCosts := make([]float64, len(events))
	succeeded := 0

	for i, ev := range events {
		latencies[i] = float64(ev.LatencyMS) / 1000.0
		inputTokens[i] = float64(ev.InputTokens)
		outputTokens[i] = float64(ev.OutputTokens)
		inputCosts[i] = float64(ev.InputTokens) * rates.InputPerToken
		outputCosts[i] = float64(ev.OutputTokens) * rates.OutputPerToken
		if ev.Succeeded {
			succeeded++
		}
	}

	return Row{
		ModelName:   key.model,
		BatchSize:   key.batchSize,
		Requests:    len(events),
		SuccessRate: float64(succeeded) / float64(len(events)),

		LatencyMeanSec: stats.Mean(latencies),
		LatencyP50Sec:  stats.Percentile(latencies, 50),
		LatencyP95Sec:  stats.Percentile(latencies, 95),

		InputTokensMean: stats.Mean(inputTokens),
		InputCostMean:   stats.Mean(inputCosts),
		InputCostP50:    stats.Percentile(inputCosts, 50),
		InputCostP95:    stats.Percentile(inputCosts, 95),

		OutputTokensMean: stats.Mean(outputTokens),
		OutputCostMean:   stats.Mean(outputCosts),
		OutputCostP50:    stats.Percentile(outputCosts, 50),
		OutputCostP95:    stats.Percentile(outputCosts, 95),
	}
}

var headers = []string{
	"model", "batch", "requests", "success",
	"lat_mean_s", "lat_p50_s", "lat_p95_s",
	"in_tokens", "in_cost_mean", "in_cost_p50", "in_cost_p95",
	"out_tokens", "out_cost_mean", "out_cost_p50", "out_cost_p95",
}

// Print writes the rows as a right-aligned fixed-width table.
func Print(w io.Writer, rows []Row) {
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			row.ModelName,
			fmt.Sprintf("%d", row.BatchSize),
			fmt.Sprintf("%d", row.Requests),
			fmt.Sprintf("%.1f%%", row.SuccessRate*100),
			fmt.Sprintf("%.2f", row.LatencyMeanSec),
			fmt.Sprintf("%.2f", row.LatencyP50Sec),
			fmt.Sprintf("%.2f", row.LatencyP95Sec),
			fmt.Sprintf("%.1f", row.InputTokensMean),
			fmt.Sprintf("%.4f", row.InputCostMean),
			fmt.Sprintf("%.4f", row.InputCostP50),
			fmt.Sprintf("%.4f", row.InputCostP95),
			fmt.Sprintf("%.1f", row.OutputTokensMean),
			fmt.Sprintf("%.4f", row.OutputCostMean),
			fmt.Sprintf("%.4f", row.OutputCostP50),
			fmt.Sprintf("%.4f", row.OutputCostP95),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range table {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = fmt.Sprintf("%*s", widths[i], cell)
		}
		fmt.Fprintln(w, strings.Join(padded, "  "))
	}

	printRow(headers)
	separators := make([]string, len(headers))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}
	printRow(separators)
	for _, row := range table {
		printRow(row)
	}
}
