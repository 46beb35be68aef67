package engine

import (
	"fmt"
	"time"

	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
)

type Outcome int

const (
	// The solver ran and exited with status 0.
	Completed Outcome = iota
	// The output file already existed, the solver was not run.
	Skipped
	// The solver exited non-zero or could not be run.
	Failed
	// The job was never started because an earlier job failed. Only produced when
	// cancelling pending jobs is enabled; such results are never yielded.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is what the engine knows about a single job once its worker is done with it.
type Result struct {
	// Position of the job in submission order.
	Index    int
	Job      jobs.Descriptor
	Outcome  Outcome
	ExitCode int
	// Time spent in the solver. Zero for skipped jobs.
	Duration time.Duration
	// Cause of a Failed outcome when the solver could not be run or was killed.
	Err error
}

// JobExecutionError is returned alongside a Failed result. Consumption of a run stops at the
// first one in submission order.
type JobExecutionError struct {
	Job      jobs.Descriptor
	ExitCode int
	Err      error
}

func (err *JobExecutionError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("error while running %s: %s", err.Job, err.Err)
	}
	return fmt.Sprintf("error while running %s: solver exited with status %d", err.Job, err.ExitCode)
}

func (err *JobExecutionError) Unwrap() error {
	return err.Err
}
