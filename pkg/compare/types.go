package compare

import (
	"errors"
	"time"
)

// CoachData references the coach's exercise video
type CoachData struct {
	ExerciseID  int64  `json:"exercise_id"`
	ExerciseURL string `json:"exercise_url"`
	CoachID     int64  `json:"coach_id"`
}

// UserData references the user's attempt at a coach exercise
type UserData struct {
	CoachExerciseID int64  `json:"coach_exercise_id"`
	ExerciseURL     string `json:"exercise_url"`
	UserExerciseID  int64  `json:"user_exercise_id"`
	UserID          int64  `json:"user_id"`
}

// Request asks for a coach/user video comparison
type Request struct {
	CoachData CoachData `json:"coach_data"`
	UserData  UserData  `json:"user_data"`
}

// Validate checks the fields every comparison needs
func (r Request) Validate() error {
	switch {
	case r.CoachData.ExerciseURL == "":
		return errors.New("coach_data.exercise_url is required")
	case r.UserData.ExerciseURL == "":
		return errors.New("user_data.exercise_url is required")
	case r.UserData.UserExerciseID == 0:
		return errors.New("user_data.user_exercise_id is required")
	}
	return nil
}

// Status of a comparison result
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Result is the outcome of one comparison. Accuracy is a 0-100
// percentage rounded to two decimals; nil when no accuracy is reported.
type Result struct {
	Status   Status   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
}

// Succeeded builds a SUCCESS result
func Succeeded(accuracy float64) *Result {
	return &Result{Status: StatusSuccess, Accuracy: &accuracy}
}

// Failed builds a FAILED result without accuracy
func Failed(message string) *Result {
	return &Result{Status: StatusFailed, Message: message}
}

// FailedWithAccuracy builds a FAILED result reporting accuracy
func FailedWithAccuracy(message string, accuracy float64) *Result {
	return &Result{Status: StatusFailed, Message: message, Accuracy: &accuracy}
}

// AsyncResponse is returned when a comparison is enqueued
type AsyncResponse struct {
	RunID           string `json:"run_id"`
	DedupeSeenCount int    `json:"dedupe_seen_count"`
}

// RunStatus describes a queued comparison run
type RunStatus struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
