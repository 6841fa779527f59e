package workflows

import "errors"

var (
	// ErrWorkflowNotFound is returned when no workflow is registered or a
	// run id is unknown
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrQueueUnavailable is returned for async operations without DBOS
	ErrQueueUnavailable = errors.New("DBOS runtime not initialized")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")
)
