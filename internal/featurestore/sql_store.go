package featurestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/crisintel/cris/internal/contract"
	"github.com/crisintel/cris/internal/metrics"
)

const defaultQueryTimeout = 10 * time.Second

// SQLStore implements Store over database/sql for both SQL backends.
// All backend differences live in the Dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

// NewSQLStore wraps an open database handle with a dialect and a
// per-query timeout bound.
func NewSQLStore(db *sql.DB, dialect Dialect, timeout time.Duration) *SQLStore {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &SQLStore{db: db, dialect: dialect, timeout: timeout}
}

// DB exposes the underlying handle for connection-pool stats sampling.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Backend returns the dialect name for logs.
func (s *SQLStore) Backend() string { return s.dialect.Name() }

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// featureColumns is the SELECT list for feature queries: the key plus
// the contract columns, explicitly. SELECT * would hide a missing
// column until cleansing; naming them makes the query itself fail.
func featureColumns() string {
	return "customer_id, " + strings.Join(contract.Columns(), ", ")
}

func (s *SQLStore) ListCustomers(ctx context.Context) ([]Customer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer metrics.ObserveStoreQuery("list_customers", time.Now())

	q := fmt.Sprintf("SELECT customer_id, name FROM %s ORDER BY customer_id",
		s.dialect.Table(TableCustomers))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) CustomerIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer metrics.ObserveStoreQuery("customer_ids", time.Now())

	q := fmt.Sprintf("SELECT customer_id FROM %s ORDER BY customer_id",
		s.dialect.Table(TableFeatures))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list customer ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan customer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) GetFeatures(ctx context.Context, customerID int64) (*FeatureRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer metrics.ObserveStoreQuery("get_features", time.Now())

	q := fmt.Sprintf("SELECT %s FROM %s WHERE customer_id = %s",
		featureColumns(), s.dialect.Table(TableFeatures), s.dialect.Placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, customerID)
	if err != nil {
		return nil, fmt.Errorf("get features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get features: %w", err)
		}
		return nil, fmt.Errorf("%w: id %d", ErrCustomerNotFound, customerID)
	}
	row, err := scanFeatureRow(rows)
	if err != nil {
		return nil, err
	}
	return row, rows.Err()
}

func (s *SQLStore) ListFeatures(ctx context.Context, ids []int64) ([]FeatureRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer metrics.ObserveStoreQuery("list_features", time.Now())

	var (
		q    string
		args []any
	)
	if ids == nil {
		q = fmt.Sprintf("SELECT %s FROM %s ORDER BY customer_id",
			featureColumns(), s.dialect.Table(TableFeatures))
	} else {
		if len(ids) == 0 {
			return nil, nil
		}
		markers := make([]string, len(ids))
		args = make([]any, len(ids))
		for i, id := range ids {
			markers[i] = s.dialect.Placeholder(i + 1)
			args[i] = id
		}
		q = fmt.Sprintf("SELECT %s FROM %s WHERE customer_id IN (%s) ORDER BY customer_id",
			featureColumns(), s.dialect.Table(TableFeatures), strings.Join(markers, ", "))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FeatureRow
	for rows.Next() {
		row, err := scanFeatureRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (s *SQLStore) Averages(ctx context.Context) (*Averages, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer metrics.ObserveStoreQuery("averages", time.Now())

	q := fmt.Sprintf(
		"SELECT AVG(monetary), AVG(frequency), AVG(recency_days) FROM %s",
		s.dialect.Table(TableFeatures))

	var monetary, frequency, recency sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, q).Scan(&monetary, &frequency, &recency); err != nil {
		return nil, fmt.Errorf("portfolio averages: %w", err)
	}
	return &Averages{
		Monetary:    monetary.Float64,
		Frequency:   frequency.Float64,
		RecencyDays: recency.Float64,
	}, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error { return s.db.Close() }

// scanFeatureRow scans the current row into a FeatureRow, preserving
// driver types so cleansing can decide what to do with them.
func scanFeatureRow(rows *sql.Rows) (*FeatureRow, error) {
	cols := contract.Columns()
	var id int64
	vals := make([]any, len(cols))
	dest := make([]any, 0, len(cols)+1)
	dest = append(dest, &id)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan feature row: %w", err)
	}

	raw := make(map[string]any, len(cols))
	for i, c := range cols {
		raw[c] = vals[i]
	}
	return &FeatureRow{CustomerID: id, Raw: raw}, nil
}
