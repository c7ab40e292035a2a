package storage

import (
	"context"
	"errors"
)

// errNoRows is what every backend's row scanner returns for an empty
// result, so the shared queries need not know the driver.
var errNoRows = errors.New("no rows in result set")

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// querier runs SQL written with Postgres-style $n placeholders
type querier interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) row
	query(ctx context.Context, query string, args ...any) (rows, error)
}

type dbTx interface {
	querier
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

// backend is a connection pool for one SQL engine
type backend interface {
	querier
	begin(ctx context.Context) (dbTx, error)
	ping(ctx context.Context) error
	close() error

	// schema returns the DDL statements for this engine, one per entry
	schema() []string
	name() string
}
