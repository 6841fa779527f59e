package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one row of the standalone ledger
type Record struct {
	RecordID  int64
	Accuracy  float64
	UpdatedAt time.Time
}

// Ledger is a SQLite result sink for standalone runs
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (and creates) the SQLite ledger at path.
// ":memory:" gives a private in-memory ledger.
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) ensureTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS comparison_results (
			record_id INTEGER PRIMARY KEY,
			accuracy REAL NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create comparison_results table: %w", err)
	}
	return nil
}

// SaveAccuracy implements Sink; the latest write for a record wins
func (l *Ledger) SaveAccuracy(ctx context.Context, recordID int64, accuracy float64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO comparison_results (record_id, accuracy, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE
		SET accuracy = excluded.accuracy,
		    updated_at = excluded.updated_at
	`, recordID, accuracy, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save accuracy for %d: %w", recordID, err)
	}
	return nil
}

// Get returns the stored record, or ErrRecordNotFound
func (l *Ledger) Get(ctx context.Context, recordID int64) (Record, error) {
	var r Record
	var ms int64
	err := l.db.QueryRowContext(ctx,
		`SELECT record_id, accuracy, updated_at FROM comparison_results WHERE record_id = ?`,
		recordID).Scan(&r.RecordID, &r.Accuracy, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record %d: %w", recordID, ErrRecordNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read record %d: %w", recordID, err)
	}
	r.UpdatedAt = time.UnixMilli(ms)
	return r, nil
}

// List returns every record ordered by id
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT record_id, accuracy, updated_at FROM comparison_results ORDER BY record_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ms int64
		if err := rows.Scan(&r.RecordID, &r.Accuracy, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.UpdatedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
