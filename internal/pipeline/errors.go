package pipeline

import (
	"errors"

	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
)

// StageError is a job failure: the stage that failed and why. It has been
// recorded on the job by the time Run returns it.
type StageError struct {
	Stage podcast.Status
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func fail(stage podcast.Status, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// IsJobFailure reports whether err is a recorded job failure rather than
// an infrastructure problem.
func IsJobFailure(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}
