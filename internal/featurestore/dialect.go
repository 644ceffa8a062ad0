package featurestore

import "strconv"

// Dialect abstracts the SQL differences between backends: table
// qualification and bind-parameter syntax. Queries are assembled from
// logical table names through this interface, never by substituting
// substrings in raw SQL. Table names that happen to contain a schema
// prefix must not be rewritten.
type Dialect interface {
	// Table qualifies a logical table name for this backend.
	Table(name string) string

	// Placeholder returns the bind parameter marker for the n-th
	// argument (1-based).
	Placeholder(n int) string

	// Name identifies the backend in logs and metrics.
	Name() string
}

// PostgresDialect qualifies tables with a schema and uses $n markers.
type PostgresDialect struct {
	Schema string
}

func (d PostgresDialect) Table(name string) string {
	if d.Schema == "" {
		return name
	}
	return d.Schema + "." + name
}

func (d PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (d PostgresDialect) Name() string { return "postgres" }

// SQLiteDialect has no schemas and uses ? markers.
type SQLiteDialect struct{}

func (SQLiteDialect) Table(name string) string   { return name }
func (SQLiteDialect) Placeholder(int) string     { return "?" }
func (SQLiteDialect) Name() string               { return "sqlite" }
