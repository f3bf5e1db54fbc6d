// Package store is the persistence layer. All SQL lives here; services and
// workers never touch database/sql directly. Counter and status updates run
// inside transactions that first lock the campaign row, which serializes
// concurrent outcome recording per campaign.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/coldpost/coldpost/internal/pkg/logger"
)

// Store wraps the database handle.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New wraps an existing handle (tests inject sqlmock here).
func New(db *sql.DB) *Store {
	return &Store{db: db, log: logger.Component("store")}
}

// Open connects to PostgreSQL and configures the connection pool.
func Open(ctx context.Context, url string, maxOpen, maxIdle int, connMaxLife time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLife)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db), nil
}

// DB exposes the raw handle for distlock fallback wiring.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.log.Warn("rollback failed", "err", rbErr)
		}
		return err
	}
	return tx.Commit()
}
