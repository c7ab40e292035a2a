package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresStore connects to PostgreSQL, creates the schema if needed and
// returns the store
func NewPostgresStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newSQLStore(ctx, &postgresBackend{pgxConn: pgxConn{q: pool}, pool: pool})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxConn struct {
	q pgxQuerier
}

func (c pgxConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgxConn) queryRow(ctx context.Context, query string, args ...any) row {
	return pgxRow{row: c.q.QueryRow(ctx, query, args...)}
}

func (c pgxConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	return c.q.Query(ctx, query, args...)
}

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoRows
	}
	return err
}

type pgxTx struct {
	pgxConn
	tx pgx.Tx
}

func (t pgxTx) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t pgxTx) rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type postgresBackend struct {
	pgxConn
	pool *pgxpool.Pool
}

func (b *postgresBackend) begin(ctx context.Context) (dbTx, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgxTx{pgxConn: pgxConn{q: tx}, tx: tx}, nil
}

func (b *postgresBackend) ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *postgresBackend) close() error {
	b.pool.Close()
	return nil
}

func (b *postgresBackend) schema() []string {
	return postgresSchema
}

func (b *postgresBackend) name() string {
	return "postgres"
}
