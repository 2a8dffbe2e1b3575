// Package sqlstore stores documents in a single SQL table keyed by
// (kind, doc_key). It runs on SQLite and on PostgreSQL through the pgx
// stdlib driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/store"
)

// Config holds configuration for the SQL store
type Config struct {
	// DB is the database connection
	DB *sql.DB

	// TableName is the name of the documents table
	TableName string

	// Logger receives batch diagnostics
	Logger *zap.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(db *sql.DB) Config {
	return Config{
		DB:        db,
		TableName: "entity_documents",
		Logger:    zap.NewNop(),
	}
}

// Store implements store.Store on database/sql
type Store struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// Open opens a database with the named driver ("sqlite3" or "pgx") and
// creates the documents table. An empty table name selects the default.
func Open(ctx context.Context, driver, dsn, table string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	config := DefaultConfig(db)
	if table != "" {
		config.TableName = table
	}
	if logger != nil {
		config.Logger = logger
	}
	s, err := New(ctx, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store on an open database and ensures the table exists
func New(ctx context.Context, config Config) (*Store, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.TableName == "" {
		config.TableName = "entity_documents"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &Store{
		db:     config.DB,
		table:  config.TableName,
		logger: config.Logger,
	}

	if err := s.createTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			kind VARCHAR(255) NOT NULL,
			doc_key VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (kind, doc_key)
		)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Scan implements store.Store
func (s *Store) Scan(ctx context.Context, kind string) ([]store.Document, error) {
	if kind == "" {
		return nil, store.ErrEmptyKind
	}

	query := fmt.Sprintf("SELECT doc_key, body FROM %s WHERE kind = $1 ORDER BY doc_key", s.table)
	rows, err := s.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", kind, ConvertDBError(err))
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var doc store.Document
		var body string
		if err := rows.Scan(&doc.Key, &body); err != nil {
			return nil, fmt.Errorf("failed to read %s document: %w", kind, err)
		}
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", kind, ConvertDBError(err))
	}
	return docs, nil
}

// Apply implements store.Store. The batch runs in one transaction which is
// rolled back on the first failing statement.
func (s *Store) Apply(ctx context.Context, ops []store.Op) (err error) {
	if err := store.Validate(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", ConvertDBError(err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	upsert := fmt.Sprintf(`
		INSERT INTO %s (kind, doc_key, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, doc_key) DO UPDATE SET body = excluded.body
	`, s.table)
	remove := fmt.Sprintf("DELETE FROM %s WHERE kind = $1 AND doc_key = $2", s.table)

	for i, op := range ops {
		if op.Delete {
			_, err = tx.ExecContext(ctx, remove, op.Kind, op.Key)
		} else {
			_, err = tx.ExecContext(ctx, upsert, op.Kind, op.Key, string(op.Body))
		}
		if err != nil {
			return fmt.Errorf("op %d (%s/%s): %w", i, op.Kind, op.Key, ConvertDBError(err))
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", ConvertDBError(err))
	}

	s.logger.Debug("applied document batch", zap.String("table", s.table), zap.Int("ops", len(ops)))
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
