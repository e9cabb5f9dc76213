// Package db opens the DuckDB database that backs the feature feeds.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
	// Extensions are installed and loaded on open. Failures are reported
	// per extension and do not close the database.
	Extensions []string
}

// DefaultExtensions are the extensions the feeds need.
var DefaultExtensions = []string{"spatial"}

// Open opens a DuckDB connection and loads the configured extensions. The
// returned slice holds one error per extension that failed to load.
func Open(cfg Config) (*sql.DB, []error, error) {
	dsn := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "mapview"
		}
		dsn = filepath.Join(dir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening duckdb %q: %w", dsn, err)
	}

	var extErrs []error
	for _, ext := range cfg.Extensions {
		if !identifier.MatchString(ext) {
			extErrs = append(extErrs, fmt.Errorf("extension %q: invalid name", ext))
			continue
		}
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			extErrs = append(extErrs, fmt.Errorf("extension %s: %w", ext, err))
		}
	}
	return conn, extErrs, nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Quote returns name as a quoted SQL identifier. Only plain identifiers
// are accepted.
func Quote(name string) (string, error) {
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

// Tables lists the tables of the main schema.
func Tables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ImportFile replaces table with the contents of a spatial file read by
// the spatial extension's ST_Read.
func ImportFile(ctx context.Context, conn *sql.DB, table, path string) error {
	q, err := Quote(table)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM ST_Read(?)", q)
	if _, err := conn.ExecContext(ctx, stmt, path); err != nil {
		return fmt.Errorf("importing %s into %s: %w", path, table, err)
	}
	return nil
}
