package featurestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/crisintel/cris/internal/contract"
)

// newSQLiteFixture builds a real SQLite store in a temp file with the
// loader's schema and a few rows, exercising the full query path.
func newSQLiteFixture(t *testing.T) *SQLStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cris.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cols := make([]string, 0, contract.NumFeatures())
	for _, c := range contract.Columns() {
		cols = append(cols, c+" REAL")
	}
	stmts := []string{
		"CREATE TABLE customers (customer_id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		fmt.Sprintf("CREATE TABLE customer_features (customer_id INTEGER PRIMARY KEY, %s)",
			strings.Join(cols, ", ")),
		"INSERT INTO customers VALUES (1, 'Acme Ltd'), (2, 'Globex')",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO customer_features (customer_id, %s) VALUES (?%s)",
		strings.Join(contract.Columns(), ", "),
		strings.Repeat(", ?", contract.NumFeatures()))
	for id, recency := range map[int64]float64{1: 5, 2: 90} {
		args := make([]any, 0, contract.NumFeatures()+1)
		args = append(args, id, recency)
		for i := 1; i < contract.NumFeatures(); i++ {
			args = append(args, 0.0)
		}
		if _, err := db.Exec(insert, args...); err != nil {
			t.Fatalf("insert features: %v", err)
		}
	}

	return NewSQLStore(db, SQLiteDialect{}, 0)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	customers, err := s.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("ListCustomers: %v", err)
	}
	if len(customers) != 2 || customers[0].Name != "Acme Ltd" {
		t.Errorf("customers = %v", customers)
	}

	row, err := s.GetFeatures(ctx, 1)
	if err != nil {
		t.Fatalf("GetFeatures: %v", err)
	}
	if contract.Coerce(row.Raw["recency_days"]) != 5 {
		t.Errorf("recency_days = %v, want 5", row.Raw["recency_days"])
	}
	if _, ok := row.Raw["avg_days_between_orders"]; !ok {
		t.Error("feature row missing contract column")
	}

	if _, err := s.GetFeatures(ctx, 404); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestSQLiteStoreListAndAverages(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()

	all, err := s.ListFeatures(ctx, nil)
	if err != nil {
		t.Fatalf("ListFeatures: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d rows, want 2", len(all))
	}

	subset, err := s.ListFeatures(ctx, []int64{2, 404})
	if err != nil {
		t.Fatalf("ListFeatures(ids): %v", err)
	}
	if len(subset) != 1 || subset[0].CustomerID != 2 {
		t.Errorf("subset = %v, want just customer 2", subset)
	}

	avg, err := s.Averages(ctx)
	if err != nil {
		t.Fatalf("Averages: %v", err)
	}
	if avg.RecencyDays != 47.5 {
		t.Errorf("RecencyDays = %f, want 47.5", avg.RecencyDays)
	}
}

func TestOpenSQLiteRequiresExistingFile(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.db"), 0)
	if err == nil {
		t.Fatal("expected error for missing database file")
	}
}
