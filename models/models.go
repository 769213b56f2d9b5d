package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TargetType identifies which prediction variant a payload carries.
type TargetType string

const (
	TargetTypePrice     TargetType = "target_price"
	TargetTypePctChange TargetType = "pct_change"
	TargetTypeRange     TargetType = "range"
	TargetTypeRanking   TargetType = "ranking"
	TargetTypeNone      TargetType = "none"
)

// ExtractedValue is the structured value carried by a prediction. Exactly one
// variant is active, identified by Kind; a nil *ExtractedValue is the absence
// case ("none"). Kind is always derived from which wire fields are populated,
// never taken from the service's own classification.
type ExtractedValue struct {
	Kind     TargetType
	Asset    string
	Currency string

	Price      float64 // TargetTypePrice
	Percentage float64 // TargetTypePctChange
	Min        float64 // TargetTypeRange
	Max        float64 // TargetTypeRange
	Ranking    int     // TargetTypeRanking
}

// extractedValueWire is the loose shape the service and the dataset use.
type extractedValueWire struct {
	Asset      string   `json:"asset"`
	Currency   string   `json:"currency"`
	Price      *float64 `json:"price"`
	Percentage *float64 `json:"percentage"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Ranking    *int     `json:"ranking"`
}

// UnmarshalJSON decodes a wire object and derives the variant from which
// fields are present. An object populating no known variant field is an error
// rather than a silent "none".
func (v *ExtractedValue) UnmarshalJSON(data []byte) error {
	var wire extractedValueWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := ExtractedValue{Asset: wire.Asset, Currency: wire.Currency}
	switch {
	case wire.Price != nil:
		out.Kind = TargetTypePrice
		out.Price = *wire.Price
	case wire.Percentage != nil:
		out.Kind = TargetTypePctChange
		out.Percentage = *wire.Percentage
	case wire.Min != nil || wire.Max != nil:
		if wire.Min == nil || wire.Max == nil {
			return fmt.Errorf("range prediction needs both min and max")
		}
		if *wire.Min > *wire.Max {
			return fmt.Errorf("range prediction with min %v > max %v", *wire.Min, *wire.Max)
		}
		out.Kind = TargetTypeRange
		out.Min = *wire.Min
		out.Max = *wire.Max
	case wire.Ranking != nil:
		out.Kind = TargetTypeRanking
		out.Ranking = *wire.Ranking
	default:
		return fmt.Errorf("extracted value has no recognizable prediction field")
	}

	*v = out
	return nil
}

// MarshalJSON emits only the active variant's fields.
func (v ExtractedValue) MarshalJSON() ([]byte, error) {
	fields := map[string]any{
		"asset":    v.Asset,
		"currency": v.Currency,
	}
	switch v.Kind {
	case TargetTypePrice:
		fields["price"] = v.Price
	case TargetTypePctChange:
		fields["percentage"] = v.Percentage
	case TargetTypeRange:
		fields["min"] = v.Min
		fields["max"] = v.Max
	case TargetTypeRanking:
		fields["ranking"] = v.Ranking
	default:
		return nil, fmt.Errorf("cannot marshal extracted value of kind %q", v.Kind)
	}
	return json.Marshal(fields)
}

// Canonical returns a deterministic textual form used for exact-match
// comparison: keys in lexicographic order, numbers in their shortest
// representation so 80000 and 80000.0 compare equal.
func (v *ExtractedValue) Canonical() string {
	if v == nil {
		return "null"
	}

	pairs := map[string]string{
		"asset":    strconv.Quote(v.Asset),
		"currency": strconv.Quote(v.Currency),
	}
	switch v.Kind {
	case TargetTypePrice:
		pairs["price"] = formatFloat(v.Price)
	case TargetTypePctChange:
		pairs["percentage"] = formatFloat(v.Percentage)
	case TargetTypeRange:
		pairs["min"] = formatFloat(v.Min)
		pairs["max"] = formatFloat(v.Max)
	case TargetTypeRanking:
		pairs["ranking"] = strconv.Itoa(v.Ranking)
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte(':')
		sb.WriteString(pairs[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Timeframe bounds the period a prediction is valid for. Start and End are
// nil when the post gives no usable boundary.
type Timeframe struct {
	Explicit bool       `json:"explicit"`
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
}

// Canonical returns the canonical textual form used for exact-match
// comparison: UTC RFC3339Nano timestamps with keys in lexicographic order.
func (t Timeframe) Canonical() string {
	return fmt.Sprintf(`{"end":%s,"explicit":%t,"start":%s}`,
		canonicalTime(t.End), t.Explicit, canonicalTime(t.Start))
}

func canonicalTime(t *time.Time) string {
	if t == nil {
		return "null"
	}
	return strconv.Quote(t.UTC().Format(time.RFC3339Nano))
}

// ParsedPrediction is one structured extraction produced by the service, or
// one ground-truth annotation. ID is the service's optional echo of the
// request item identifier.
type ParsedPrediction struct {
	ID             string          `json:"id,omitempty"`
	ExtractedValue *ExtractedValue `json:"extracted_value"`
	BearBull       int             `json:"bear_bull"`
	Timeframe      Timeframe       `json:"timeframe"`
	Notes          []string        `json:"notes"`
}

// TargetType derives the discriminator from the populated variant.
func (p ParsedPrediction) TargetType() TargetType {
	if p.ExtractedValue == nil {
		return TargetTypeNone
	}
	return p.ExtractedValue.Kind
}

// Validate enforces the field invariants the service is supposed to honor.
func (p ParsedPrediction) Validate() error {
	if p.BearBull < -100 || p.BearBull > 100 {
		return fmt.Errorf("bear_bull %d outside [-100, 100]", p.BearBull)
	}
	return nil
}

// PostInput is one item of an extraction request.
type PostInput struct {
	PostText      string    `json:"post_text"`
	PostCreatedAt time.Time `json:"post_created_at"`
}

// Usage is the token accounting the service reports for one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	Requests         int
}

// PredictionRecord is one persisted model output for one dataset example.
// Records are append-only; corrections are new records, never edits.
type PredictionRecord struct {
	RunID        string
	BatchSize    int
	BatchID      int
	ExampleID    int
	PredictionID string
	Payload      ParsedPrediction
	CreatedAt    time.Time
}

// UsageEvent is one persisted request attempt, written exactly once per
// extraction call whether or not it succeeded.
type UsageEvent struct {
	ModelName        string
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	RequestCount     int
	BatchID          int
	BatchSize        int
	LatencyMS        int64
	Succeeded        bool
	CreatedAt        time.Time
}

// ID tolerates both JSON strings and numbers, mirroring the dataset's loose
// id column.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// DatasetEntry is one labeled example: the post to parse plus its
// ground-truth annotation fields.
type DatasetEntry struct {
	ID             ID              `json:"id"`
	PostText       string          `json:"post_text"`
	PostCreatedAt  time.Time       `json:"post_created_at"`
	ExtractedValue *ExtractedValue `json:"extracted_value"`
	BearBull       int             `json:"bear_bull"`
	Timeframe      Timeframe       `json:"timeframe"`
	Notes          []string        `json:"notes"`
}

// Input returns the request item for this entry.
func (e DatasetEntry) Input() PostInput {
	return PostInput{PostText: e.PostText, PostCreatedAt: e.PostCreatedAt}
}

// Annotation returns the entry's ground truth as a prediction payload.
func (e DatasetEntry) Annotation() ParsedPrediction {
	return ParsedPrediction{
		ID:             string(e.ID),
		ExtractedValue: e.ExtractedValue,
		BearBull:       e.BearBull,
		Timeframe:      e.Timeframe,
		Notes:          e.Notes,
	}
}
