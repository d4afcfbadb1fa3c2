// Package store persists conversion records in Postgres. All status writes
// go through guarded UPDATEs so a record can never leave a terminal state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"converter/models"
)

// ErrNotFound is returned when a conversion record does not exist.
var ErrNotFound = errors.New("store: conversion not found")

type Store struct {
	db *sql.DB
}

func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Create inserts a new record in the queued state. Records exist only for
// admitted requests.
func (s *Store) Create(ctx context.Context, rec *models.ConversionRecord) error {
	query := `INSERT INTO conversions
		(id, owner_id, source_format, target_format, status, input_key, file_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	now := time.Now()
	rec.Status = models.StatusQueued
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, nullable(rec.OwnerID), rec.SourceFormat, rec.TargetFormat,
		rec.Status, rec.InputKey, rec.FileSize, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversion record: %w", err)
	}
	return nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, id string) (*models.ConversionRecord, error) {
	query := `SELECT id, owner_id, source_format, target_format, status, input_key,
		COALESCE(output_url, ''), COALESCE(error_message, ''), file_size, created_at, updated_at
		FROM conversions WHERE id = $1`

	var rec models.ConversionRecord
	var owner sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &owner, &rec.SourceFormat, &rec.TargetFormat, &rec.Status,
		&rec.InputKey, &rec.OutputURL, &rec.ErrorDetail, &rec.FileSize,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversion record: %w", err)
	}
	rec.OwnerID = owner.String
	return &rec, nil
}

// MarkProcessing moves a record to processing. Re-running it for an already
// processing record (a retried attempt) is a no-op, and terminal records are
// never touched.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE conversions
		SET status = $1, started_at = COALESCE(started_at, $2), updated_at = $2
		WHERE id = $3 AND status IN ($4, $1)`

	_, err := s.db.ExecContext(ctx, query, models.StatusProcessing, time.Now(), id, models.StatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark conversion processing: %w", err)
	}
	return nil
}

// MarkCompleted records a successful conversion with its output reference.
// The guard keeps the transition monotonic: a terminal record stays as it is.
func (s *Store) MarkCompleted(ctx context.Context, id string, outputURL string) error {
	query := `UPDATE conversions
		SET status = $1, output_url = $2, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status NOT IN ($5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		models.StatusCompleted, outputURL, time.Now(), id,
		models.StatusCompleted, models.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark conversion completed: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with a sanitized, user-facing
// message.
func (s *Store) MarkFailed(ctx context.Context, id string, detail string) error {
	query := `UPDATE conversions
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ($5, $1)`

	_, err := s.db.ExecContext(ctx, query,
		models.StatusFailed, detail, time.Now(), id, models.StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to mark conversion failed: %w", err)
	}
	return nil
}

// IncrementUsage bumps the owner's monthly conversion counter.
func (s *Store) IncrementUsage(ctx context.Context, ownerID string) error {
	query := `UPDATE users SET conversions_used = conversions_used + 1, updated_at = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, query, time.Now(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to increment usage for %s: %w", ownerID, err)
	}
	return nil
}

// CountMonthlyUsage returns how many conversions the owner has started in
// the current calendar month. The admission gate uses it for quota checks.
func (s *Store) CountMonthlyUsage(ctx context.Context, ownerID string) (int, error) {
	query := `SELECT COUNT(*) FROM conversions
		WHERE owner_id = $1 AND created_at >= date_trunc('month', now())`

	var n int
	if err := s.db.QueryRowContext(ctx, query, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count monthly usage: %w", err)
	}
	return n, nil
}

// Ping reports database liveness for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
