// Package store provides storage backends for danabot.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/redmadres/danabot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	sqlBackend
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One connection serializes writers; the claim transition relies on it
	// instead of retrying SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		slog.Error("Failed to enable SQLite foreign keys", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{sqlBackend{db: db, name: "SQLiteStore"}}, nil
}

// CreateHelpRequest validates and inserts a pending help request, returning its ID.
func (s *SQLiteStore) CreateHelpRequest(h models.HelpRequest) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO help_requests (requester_id, urgency, specialty, description, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`,
		h.RequesterID, h.Urgency, h.Specialty, h.Description, h.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateHelpRequest failed", "error", err, "requesterID", h.RequesterID)
		return 0, fmt.Errorf("failed to insert help request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read help request id: %w", err)
	}
	slog.Debug("SQLiteStore CreateHelpRequest succeeded", "id", id, "requesterID", h.RequesterID, "urgency", h.Urgency)
	return id, nil
}
