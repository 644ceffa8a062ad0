package featurestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// OpenPostgres opens the PostgreSQL-backed feature store. The schema
// holds the loader-owned tables (empty means the default search path).
func OpenPostgres(dsn, schema string, timeout time.Duration) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres feature store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLStore(db, PostgresDialect{Schema: schema}, timeout), nil
}
