// Package results persists comparison accuracies and answers the
// exercise lookups made before a comparison starts.
package results

import (
	"context"
	"errors"
)

var (
	// ErrExerciseNotFound is returned when an exercise record does not exist
	ErrExerciseNotFound = errors.New("exercise not found")

	// ErrRecordNotFound is returned by Ledger.Get for unknown records
	ErrRecordNotFound = errors.New("record not found")
)

// Sink stores the accuracy of one user exercise record
type Sink interface {
	SaveAccuracy(ctx context.Context, recordID int64, accuracy float64) error
}

// Exercise is a coach exercise row
type Exercise struct {
	ID      int64
	RoundID int64
	VideoID int64
	Type    string
}

// Directory resolves exercise records referenced by a comparison request
type Directory interface {
	LookupExercise(ctx context.Context, id int64) (Exercise, error)
	// Touch bumps updated_at on the coach exercise and user exercise rows
	Touch(ctx context.Context, exerciseID, userExerciseID int64) error
}

// Discard is a Sink that drops every write
type Discard struct{}

// SaveAccuracy implements Sink
func (Discard) SaveAccuracy(context.Context, int64, float64) error { return nil }
