package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteDB wraps a SQLite database behind the pgx-style calls the adapter needs
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at dbPath, creating its directory if needed
func NewSQLiteDB(ctx context.Context, dbPath string) (*SQLiteDB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer at a time, SQLite serializes them anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	logrus.Debugf("Opened SQLite database %s", dbPath)
	return &SQLiteDB{db: db}, nil
}

var pgPlaceholder = regexp.MustCompile(`\$(\d+)`)

// rebind turns PostgreSQL placeholders ($1) into SQLite numbered ones (?1)
func rebind(query string) string {
	return pgPlaceholder.ReplaceAllString(query, "?$1")
}

// Exec executes a SQL command
func (s *SQLiteDB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebind(query), args...)
}

// Query executes a SQL query
func (s *SQLiteDB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebind(query), args...)
}

// QueryRow executes a SQL query that returns a single row
func (s *SQLiteDB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, rebind(query), args...)
}

// Close closes the database connection
func (s *SQLiteDB) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// ParseDatabaseURL splits a database URL into its driver and connection string
func ParseDatabaseURL(dbURL string) (string, string, error) {
	if strings.HasPrefix(dbURL, "sqlite:") {
		return "sqlite", strings.TrimPrefix(dbURL, "sqlite:"), nil
	} else if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		return "postgres", dbURL, nil
	}

	return "", "", fmt.Errorf("unsupported database URL format: %s", dbURL)
}
