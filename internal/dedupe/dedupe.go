package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// Recorder counts submissions per user exercise record
type Recorder interface {
	Record(ctx context.Context, userExerciseID int64) (int, error)
}

// Tracker tracks repeated comparison submissions in Postgres
type Tracker struct {
	db      *sql.DB
	version int
}

// NewTracker creates a new dedupe tracker; version tags the pipeline
// revision that handled the latest submission.
func NewTracker(ctx context.Context, db *sql.DB, version int, logger *slog.Logger) (*Tracker, error) {
	tracker := &Tracker{db: db, version: version}

	if err := tracker.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}

	logger.Info("comparison_dedupe table ready")
	return tracker, nil
}

// ensureTable creates the comparison_dedupe table if it doesn't exist
func (t *Tracker) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS comparison_dedupe (
			record_key TEXT PRIMARY KEY,
			pipeline_version INTEGER,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	_, err := t.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create comparison_dedupe table: %w", err)
	}
	return nil
}

// Record records a submission and returns how often the record was seen
func (t *Tracker) Record(ctx context.Context, userExerciseID int64) (int, error) {
	// Upsert: increment seen_count if exists, insert if not
	query := `
		INSERT INTO comparison_dedupe (record_key, pipeline_version, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, NOW(), NOW(), 1)
		ON CONFLICT (record_key) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = comparison_dedupe.seen_count + 1,
		    pipeline_version = EXCLUDED.pipeline_version
		RETURNING seen_count
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, key(userExerciseID), t.version).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record dedupe: %w", err)
	}

	return seenCount, nil
}

// GetSeenCount retrieves the seen count for a user exercise record
func (t *Tracker) GetSeenCount(ctx context.Context, userExerciseID int64) (int, error) {
	query := `SELECT seen_count FROM comparison_dedupe WHERE record_key = $1`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, key(userExerciseID)).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}

func key(userExerciseID int64) string {
	return "user_exercise:" + strconv.FormatInt(userExerciseID, 10)
}
