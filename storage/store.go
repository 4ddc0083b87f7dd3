// Package storage is the relational store behind the importer.
//
// A Store wraps a sqlx database handle for either postgres (pgx) or sqlite.
// The schema lives in embedded, ordered SQL files and is applied by Migrate.
// All reads and writes go through a Tx addressing tables and columns by name,
// so callers never build SQL themselves.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const migrationsTable = "schema_migrations"

// Driver names registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// ParseURL maps a database URL to a driver name and data source name.
//
//	postgres://... postgresql://...   -> pgx
//	sqlite:///abs/path.db sqlite://rel.db file:path.db -> sqlite
func ParseURL(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		return DriverSQLite, withPragmas(strings.TrimPrefix(url, "sqlite://")), nil
	case strings.HasPrefix(url, "file:"):
		return DriverSQLite, withPragmas(url), nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", url)
	}
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Store is an open database.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database at url.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // single writer
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	logger.Debug("Database connected", "driver", driver)
	return &Store{db: db, driver: driver, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Migrations returns the embedded migration names in apply order.
func Migrations() ([]string, error) {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Migrate applies every migration not yet recorded and returns their names.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		version     VARCHAR(100) PRIMARY KEY,
		applied_at  VARCHAR(40) NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	names, err := Migrations()
	if err != nil {
		return nil, err
	}

	var done []string
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := s.applyMigration(ctx, name); err != nil {
			return done, err
		}
		s.logger.Info("Migration applied", "file", name)
		done = append(done, name)
	}
	return done, nil
}

func (s *Store) applyMigration(ctx context.Context, name string) error {
	data, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(string(data)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute %s: %w", name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO `+migrationsTable+` (version, applied_at) VALUES (?, ?)`),
		name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return tx.Commit()
}

// splitStatements splits a migration on semicolons. Migrations never use
// semicolons inside statements.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		if strings.TrimSpace(stripComments(stmt)) != "" {
			out = append(out, strings.TrimSpace(stmt))
		}
	}
	return out
}

func stripComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	var versions []string
	if err := s.db.SelectContext(ctx, &versions, `SELECT version FROM `+migrationsTable); err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsTable, err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// ErrSchemaOutdated is returned when embedded migrations are missing from the database.
var ErrSchemaOutdated = errors.New("database schema is not up to date, run init-db")

// CheckSchema verifies every embedded migration has been applied.
func (s *Store) CheckSchema(ctx context.Context) error {
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaOutdated, err)
	}
	names, err := Migrations()
	if err != nil {
		return err
	}
	var missing []string
	for _, name := range names {
		if !applied[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSchemaOutdated, strings.Join(missing, ", "))
	}
	return nil
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}
