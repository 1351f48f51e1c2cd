// Package store provides storage backends for danabot.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/redmadres/danabot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	sqlBackend
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{sqlBackend{db: db, name: "PostgresStore", postgres: true}}, nil
}

// CreateHelpRequest validates and inserts a pending help request, returning its ID.
func (s *PostgresStore) CreateHelpRequest(h models.HelpRequest) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO help_requests (requester_id, urgency, specialty, description, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		RETURNING id`,
		h.RequesterID, h.Urgency, h.Specialty, h.Description, h.CreatedAt).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore CreateHelpRequest failed", "error", err, "requesterID", h.RequesterID)
		return 0, fmt.Errorf("failed to insert help request: %w", err)
	}
	slog.Debug("PostgresStore CreateHelpRequest succeeded", "id", id, "requesterID", h.RequesterID, "urgency", h.Urgency)
	return id, nil
}
