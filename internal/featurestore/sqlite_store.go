package featurestore

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// OpenSQLite opens the embedded SQLite feature store. The file must
// already exist: it is produced by the export step of the external
// loader, and opening a path the loader never wrote would silently
// create an empty database and score nothing.
func OpenSQLite(path string, timeout time.Duration) (*SQLStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite feature store %s: %w (run the export step first)", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite feature store: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids lock
	// contention on the read path.
	db.SetMaxOpenConns(1)

	return NewSQLStore(db, SQLiteDialect{}, timeout), nil
}
