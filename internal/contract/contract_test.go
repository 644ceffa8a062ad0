package contract

import (
	"errors"
	"testing"
)

func fullRow() map[string]any {
	row := make(map[string]any)
	for _, c := range Columns() {
		row[c] = 0.0
	}
	return row
}

func TestVectorOrder(t *testing.T) {
	row := fullRow()
	row["recency_days"] = int64(5)
	row["frequency"] = 20
	row["monetary"] = "5000"

	vec, err := Vector(row)
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if len(vec) != NumFeatures() {
		t.Fatalf("vector length = %d, want %d", len(vec), NumFeatures())
	}
	if vec[0] != 5 || vec[1] != 20 || vec[2] != 5000 {
		t.Errorf("vector head = %v, want [5 20 5000 ...]", vec[:3])
	}
}

func TestVectorCoercesBadValuesToZero(t *testing.T) {
	row := fullRow()
	row["monetary"] = "not-a-number"
	row["cancel_rate"] = nil
	row["trend_ratio"] = []byte("  1.25 ")

	vec, err := Vector(row)
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	iMon, _ := Index("monetary")
	iCan, _ := Index("cancel_rate")
	iTrd, _ := Index("trend_ratio")
	if vec[iMon] != 0 {
		t.Errorf("unparseable string should cleanse to 0, got %f", vec[iMon])
	}
	if vec[iCan] != 0 {
		t.Errorf("nil should cleanse to 0, got %f", vec[iCan])
	}
	if vec[iTrd] != 1.25 {
		t.Errorf("numeric []byte should parse, got %f", vec[iTrd])
	}
}

func TestVectorMissingColumnFailsLoudly(t *testing.T) {
	row := fullRow()
	delete(row, "return_rate")

	_, err := Vector(row)
	if !errors.Is(err, ErrColumnMissing) {
		t.Fatalf("expected ErrColumnMissing, got %v", err)
	}
}

func TestMatrixShape(t *testing.T) {
	rows := []map[string]any{fullRow(), fullRow(), fullRow()}
	m, err := Matrix(rows)
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	if len(m) != 3 {
		t.Fatalf("matrix rows = %d, want 3 (no row may be dropped)", len(m))
	}
	for i, r := range m {
		if len(r) != NumFeatures() {
			t.Errorf("row %d width = %d, want %d", i, len(r), NumFeatures())
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Columns()); err != nil {
		t.Errorf("exact contract should validate, got %v", err)
	}

	short := Columns()[:13]
	if err := Validate(short); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("short list should mismatch, got %v", err)
	}

	swapped := Columns()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	if err := Validate(swapped); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("reordered list should mismatch, got %v", err)
	}
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{3.5, 3.5},
		{float32(2), 2},
		{int64(7), 7},
		{int32(7), 7},
		{9, 9},
		{true, 1},
		{false, 0},
		{"12.5", 12.5},
		{"garbage", 0},
		{[]byte("8"), 8},
		{[]byte("x"), 0},
		{struct{}{}, 0},
	}
	for _, c := range cases {
		if got := Coerce(c.in); got != c.want {
			t.Errorf("Coerce(%#v) = %f, want %f", c.in, got, c.want)
		}
	}
}
