package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	_ "modernc.org/sqlite" // Register the sqlite driver.
)

const (
	// sqliteOptionPrefix is how modernc.org/sqlite takes pragmas in the DSN
	sqliteOptionPrefix = "_pragma"

	// sqliteTxLockImmediate starts write transactions immediately so two
	// writers never deadlock upgrading a read lock.
	sqliteTxLockImmediate = "_txlock=immediate"
)

var sqlitePragmas = []struct {
	name  string
	value string
}{
	{name: "foreign_keys", value: "on"},
	{name: "journal_mode", value: "WAL"},
	{name: "busy_timeout", value: "5000"},
	{name: "synchronous", value: "full"},
}

// NewSQLiteStore opens (or creates) a SQLite database at path, creates the
// schema if needed and returns the store. Used for local runs and tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	options := make(url.Values)
	for _, pragma := range sqlitePragmas {
		options.Add(sqliteOptionPrefix, fmt.Sprintf("%v=%v", pragma.name, pragma.value))
	}
	dsn := fmt.Sprintf("%v?%v&%v", path, options.Encode(), sqliteTxLockImmediate)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection serialises writers; the conditional claim
	// update relies on statements not interleaving.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newSQLStore(ctx, &sqliteBackend{sqlConn: sqlConn{q: db}, db: db})
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $n placeholders into SQLite's ?n form
func rebind(query string) string {
	return placeholderRe.ReplaceAllString(query, "?$1")
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlConn struct {
	q sqlQuerier
}

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) row {
	return sqlRow{row: c.q.QueryRowContext(ctx, rebind(query), args...)}
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.q.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{Rows: r}, nil
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return errNoRows
	}
	return err
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlTx struct {
	sqlConn
	tx *sql.Tx
}

func (t sqlTx) commit(context.Context) error {
	return t.tx.Commit()
}

func (t sqlTx) rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqliteBackend struct {
	sqlConn
	db *sql.DB
}

func (b *sqliteBackend) begin(ctx context.Context) (dbTx, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{sqlConn: sqlConn{q: tx}, tx: tx}, nil
}

func (b *sqliteBackend) ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}

func (b *sqliteBackend) schema() []string {
	return sqliteSchema
}

func (b *sqliteBackend) name() string {
	return "sqlite"
}
