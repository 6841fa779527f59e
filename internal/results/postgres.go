package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore writes accuracies into the application's existing
// user_data_exercise table and reads the exercise table. It never
// creates or migrates those tables.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and verifies the connection
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open connection pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the pool for components sharing the connection
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// SaveAccuracy implements Sink
func (s *PostgresStore) SaveAccuracy(ctx context.Context, recordID int64, accuracy float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_data_exercise SET accuracy = $1 WHERE id = $2`,
		accuracy, recordID)
	if err != nil {
		return fmt.Errorf("failed to update accuracy for %d: %w", recordID, err)
	}
	return nil
}

// LookupExercise implements Directory
func (s *PostgresStore) LookupExercise(ctx context.Context, id int64) (Exercise, error) {
	ex := Exercise{ID: id}
	var roundID, videoID sql.NullInt64
	var typ sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT "roundId", "videoId", "type" FROM exercise WHERE id = $1`, id,
	).Scan(&roundID, &videoID, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return Exercise{}, fmt.Errorf("exercise %d: %w", id, ErrExerciseNotFound)
	}
	if err != nil {
		return Exercise{}, fmt.Errorf("failed to look up exercise %d: %w", id, err)
	}
	ex.RoundID = roundID.Int64
	ex.VideoID = videoID.Int64
	ex.Type = typ.String
	return ex, nil
}

// Timestamps in the application schema are Singapore local time. The
// exercise table is camelCase and caches "standardPoses", which is
// cleared whenever the exercise is compared again.
const (
	touchExerciseQuery = `UPDATE exercise SET "standardPoses" = NULL, "updatedAt" = timezone('Asia/Singapore', now()) WHERE id = $1`
	touchUserQuery     = `UPDATE user_data_exercise SET "updated_at" = timezone('Asia/Singapore', now()) WHERE id = $1`
)

// Touch implements Directory
func (s *PostgresStore) Touch(ctx context.Context, exerciseID, userExerciseID int64) error {
	if _, err := s.db.ExecContext(ctx, touchExerciseQuery, exerciseID); err != nil {
		return fmt.Errorf("failed to touch exercise %d: %w", exerciseID, err)
	}
	if _, err := s.db.ExecContext(ctx, touchUserQuery, userExerciseID); err != nil {
		return fmt.Errorf("failed to touch user exercise %d: %w", userExerciseID, err)
	}
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
