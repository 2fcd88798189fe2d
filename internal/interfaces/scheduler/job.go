package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
// This interface allows for extensibility - different types of jobs can be
// implemented (e.g., sync jobs, health jobs, cleanup jobs).
type Job interface {
	// Execute runs the job with the given context.
	// Context should be respected for cancellation and timeouts.
	Execute(ctx context.Context) error

	// Target returns what the job operates on: a connection ID, or a
	// collective scope like "all". Used for logging and metrics.
	Target() string

	// Description returns a human-readable description of the job.
	// Used for logging purposes.
	Description() string
}
