package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the SQL-backed time-series accessor and alert repository. The same
// queries serve SQLite and PostgreSQL; placeholders are rebound per dialect.
type Store struct {
	logger  *zap.Logger
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open opens a database for the given driver and prepares the schema
func Open(ctx context.Context, logger *zap.Logger, driver, dsn string, maxOpenConns int) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := New(logger, db, dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database opened", zap.String("driver", driver))
	return store, nil
}

// New wraps an existing connection pool
func New(logger *zap.Logger, db *sql.DB, dialect Dialect) *Store {
	return &Store{
		logger:  logger.Named("storage"),
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// Migrate creates the tables and indexes if they don't exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// utc normalises timestamps before they reach the driver so that SQLite's text
// comparison orders them correctly
func utc(t time.Time) time.Time {
	return t.UTC()
}
