// Package contract defines the fixed feature schema shared by training
// and inference.
//
// The column list is ordered and load-bearing: the scaler and the
// classifier both expect their input in exactly this order, so any
// drift between the trainer's view of the schema and ours invalidates
// the model artifacts. Validate catches that at load time.
package contract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Target is the label column produced by the external trainer.
// Inference never reads it; it exists here so both sides agree on the name.
const Target = "is_churned"

// columns is the canonical feature order. Do not reorder without retraining.
var columns = []string{
	"recency_days",
	"frequency",
	"monetary",
	"avg_order_value_lifetime",
	"avg_order_value_last_3m",
	"trend_ratio",
	"orders_last_3m",
	"orders_first_3m",
	"cancel_rate",
	"return_rate",
	"unique_categories",
	"avg_items_per_order",
	"unique_products",
	"avg_days_between_orders",
}

var colIndex = func() map[string]int {
	m := make(map[string]int, len(columns))
	for i, c := range columns {
		m[c] = i
	}
	return m
}()

// Sentinel errors for schema problems.
var (
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	ErrColumnMissing  = errors.New("feature column missing")
)

// Columns returns a copy of the ordered feature column names.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// NumFeatures returns the width of a feature vector.
func NumFeatures() int { return len(columns) }

// Index returns the position of a feature column, or false if unknown.
func Index(name string) (int, bool) {
	i, ok := colIndex[name]
	return i, ok
}

// Validate checks a model's stored feature list against the contract.
// Count and order must both match exactly; a model trained on a
// different schema must be rejected, never truncated or padded.
func Validate(modelFeatures []string) error {
	if len(modelFeatures) != len(columns) {
		return fmt.Errorf("%w: model has %d features, contract has %d",
			ErrSchemaMismatch, len(modelFeatures), len(columns))
	}
	for i, name := range modelFeatures {
		if name != columns[i] {
			return fmt.Errorf("%w: position %d is %q in model, %q in contract",
				ErrSchemaMismatch, i, name, columns[i])
		}
	}
	return nil
}

// Vector cleanses one raw feature row into a numeric vector in contract
// order. Values that are NULL or fail to parse become 0; we deliberately
// do not distinguish "missing" from "legitimately zero". A column absent
// from the row entirely is a schema problem and fails loudly.
func Vector(raw map[string]any) ([]float64, error) {
	vec := make([]float64, len(columns))
	for i, col := range columns {
		v, ok := raw[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnMissing, col)
		}
		vec[i] = Coerce(v)
	}
	return vec, nil
}

// Matrix cleanses a batch of raw rows. No row is ever dropped here:
// output length always equals input length.
func Matrix(rows []map[string]any) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		vec, err := Vector(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Coerce converts a raw store value to float64. Drivers hand back a mix
// of int64, float64, []byte and string depending on backend and column
// affinity; anything unparseable collapses to 0.
func Coerce(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case []byte:
		return parseNumeric(string(x))
	case string:
		return parseNumeric(x)
	default:
		return 0
	}
}

func parseNumeric(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
