package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed migrations/schema.sql
var schemaSQL string

// statements splits the schema into single statements, both drivers accept
// one statement per Exec with bound parameters
func statements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// InitSchema creates the catalog tables when they do not exist yet
func InitSchema(ctx context.Context, db DBAdapter) error {
	for _, stmt := range statements(schemaSQL) {
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logrus.Debug("Catalog schema initialized")
	return nil
}
