package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier runs statements. Queries use PostgreSQL style $N placeholders on
// every backend.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// DBAdapter provides a unified interface for database operations
type DBAdapter interface {
	Querier
	// InTx runs fn in a transaction, committing when it returns nil
	InTx(ctx context.Context, fn func(q Querier) error) error
	Close()
}

// Rows interface for database rows
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// Row interface for single database row
type Row interface {
	Scan(dest ...any) error
}

// PostgreSQLAdapter wraps pgxpool.Pool
type PostgreSQLAdapter struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter
func NewPostgreSQLAdapter(pool *pgxpool.Pool) *PostgreSQLAdapter {
	return &PostgreSQLAdapter{pool: pool}
}

func (p *PostgreSQLAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := p.pool.Exec(ctx, sql, args...)
	return err
}

func (p *PostgreSQLAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (p *PostgreSQLAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *PostgreSQLAdapter) InTx(ctx context.Context, fn func(q Querier) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgxTxQuerier{tx: tx})
	})
}

func (p *PostgreSQLAdapter) Close() {
	p.pool.Close()
}

type pgxTxQuerier struct {
	tx pgx.Tx
}

func (q *pgxTxQuerier) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := q.tx.Exec(ctx, sql, args...)
	return err
}

func (q *pgxTxQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := q.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (q *pgxTxQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return q.tx.QueryRow(ctx, sql, args...)
}

// SQLiteAdapter wraps SQLiteDB
type SQLiteAdapter struct {
	db *SQLiteDB
}

// NewSQLiteAdapter creates a new SQLite adapter
func NewSQLiteAdapter(db *SQLiteDB) *SQLiteAdapter {
	return &SQLiteAdapter{db: db}
}

func (s *SQLiteAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.db.Exec(ctx, sql, args...)
	return err
}

func (s *SQLiteAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (s *SQLiteAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return s.db.QueryRow(ctx, sql, args...)
}

func (s *SQLiteAdapter) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqlTxQuerier{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteAdapter) Close() {
	s.db.Close()
}

type sqlTxQuerier struct {
	tx *sql.Tx
}

func (q *sqlTxQuerier) Exec(ctx context.Context, query string, args ...any) error {
	_, err := q.tx.ExecContext(ctx, rebind(query), args...)
	return err
}

func (q *sqlTxQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.tx.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (q *sqlTxQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return q.tx.QueryRowContext(ctx, rebind(query), args...)
}

// Rows implementations
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool {
	return r.rows.Next()
}

func (r *pgxRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *pgxRows) Close() {
	r.rows.Close()
}

func (r *pgxRows) Err() error {
	return r.rows.Err()
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *sqlRows) Close() {
	r.rows.Close()
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

// CreateDatabaseAdapter connects to the database named by dbURL and makes
// sure the catalog schema exists
func CreateDatabaseAdapter(ctx context.Context, dbURL string) (DBAdapter, error) {
	dbType, connStr, err := ParseDatabaseURL(dbURL)
	if err != nil {
		return nil, err
	}

	var adapter DBAdapter
	switch dbType {
	case "sqlite":
		db, err := NewSQLiteDB(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite connection: %w", err)
		}
		adapter = NewSQLiteAdapter(db)

	case "postgres":
		config, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PostgreSQL URL: %w", err)
		}

		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
		}
		adapter = NewPostgreSQLAdapter(pool)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	if err := InitSchema(ctx, adapter); err != nil {
		adapter.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return adapter, nil
}

// IsNoRows reports whether err means a single-row query matched nothing
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
