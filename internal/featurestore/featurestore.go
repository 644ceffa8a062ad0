// Package featurestore abstracts the customer feature tables over two
// storage backends: a PostgreSQL server and an embedded SQLite file.
//
// The two backends qualify table names differently (PostgreSQL uses a
// named schema, SQLite has none), so all SQL in this package is built
// through a small Dialect rather than by patching query text. Callers
// only ever see logical table names.
//
// The store is strictly read-only from the engine's point of view: the
// external loader populates the tables, we query them.
package featurestore

import (
	"context"
	"errors"
)

// Logical table names, qualified per backend by the Dialect.
const (
	TableCustomers = "customers"
	TableFeatures  = "customer_features"
)

// ErrCustomerNotFound means the requested customer has no feature row.
// Callers must be able to tell this apart from any scored outcome.
var ErrCustomerNotFound = errors.New("customer not found in feature store")

// Customer is a directory entry for the dashboard selector.
type Customer struct {
	ID   int64  `json:"customerId"`
	Name string `json:"name"`
}

// FeatureRow is one customer's raw feature record as the backend
// returned it. Values keep their driver types; cleansing them into
// numbers is the contract package's job. Read-only once fetched.
type FeatureRow struct {
	CustomerID int64
	Raw        map[string]any
}

// Averages carries portfolio-wide feature means for comparison views.
type Averages struct {
	Monetary    float64 `json:"monetary"`
	Frequency   float64 `json:"frequency"`
	RecencyDays float64 `json:"recencyDays"`
}

// Store is the feature store accessor consumed by the scoring engine.
type Store interface {
	// ListCustomers returns all customer ids and display names.
	ListCustomers(ctx context.Context) ([]Customer, error)

	// CustomerIDs returns the ids of every customer with a feature row.
	CustomerIDs(ctx context.Context) ([]int64, error)

	// GetFeatures returns one customer's feature row, or
	// ErrCustomerNotFound if the store has no row for the id.
	GetFeatures(ctx context.Context, customerID int64) (*FeatureRow, error)

	// ListFeatures returns feature rows for the given ids, or every
	// row when ids is nil. Ids without a row are simply absent from
	// the result; they are not an error here.
	ListFeatures(ctx context.Context, ids []int64) ([]FeatureRow, error)

	// Averages returns portfolio-wide means for the comparison view.
	Averages(ctx context.Context) (*Averages, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
