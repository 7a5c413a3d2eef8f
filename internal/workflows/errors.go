package workflows

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a job is submitted without an ID
	ErrInvalidRequest = errors.New("invalid pipeline request")

	// ErrDuplicateJob is returned when a job ID is already in flight
	ErrDuplicateJob = errors.New("job already in progress")

	// ErrInvalidCheckpoint is returned when a stage would move progress to a value
	// outside the checkpoint schedule or backwards
	ErrInvalidCheckpoint = errors.New("invalid progress checkpoint")
)

// StageError reports the stage that stopped a job.
// Progress is the last checkpoint the job reached.
type StageError struct {
	JobID    string
	Stage    string
	Progress int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("job %s: %s stage failed at %d%%: %v", e.JobID, e.Stage, e.Progress, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
