package engine

import (
	"io"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/G-Research/benchrunner/internal/benchrunner/errs"
	"github.com/G-Research/benchrunner/internal/benchrunner/failures"
	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
	"github.com/G-Research/benchrunner/internal/benchrunner/metrics"
	"github.com/G-Research/benchrunner/internal/benchrunner/output"
	"github.com/G-Research/benchrunner/internal/benchrunner/solver"
	"github.com/G-Research/benchrunner/internal/common/logging"
	"github.com/G-Research/benchrunner/internal/common/runctx"
	"github.com/G-Research/benchrunner/internal/common/util"
)

type Config struct {
	// Folder receiving solver outputs and errors.txt.
	OutputFolder string
	// Root of the benchmark instance files.
	InstancesDir      string
	InstanceExtension string
	// Upper bound on jobs running at the same time.
	MaxWorkers int
	// When set, jobs that have not started by the time any job fails are never started.
	// Jobs already running are always left to finish.
	CancelPendingOnFailure bool
	// Times solver runs. Defaults to the system clock.
	Clock util.Clock
}

// Engine runs jobs on a bounded pool of workers and hands their results back in submission order.
type Engine struct {
	config   Config
	invoker  solver.Invoker
	recorder failures.Recorder
	metrics  *metrics.Metrics
}

func New(config Config, invoker solver.Invoker, recorder failures.Recorder, m *metrics.Metrics) (*Engine, error) {
	if config.MaxWorkers < 1 {
		return nil, errors.WithStack(&errs.ErrInvalidArgument{
			Name:    "MaxWorkers",
			Value:   config.MaxWorkers,
			Message: "at least one worker is required",
		})
	}
	if config.Clock == nil {
		config.Clock = &util.DefaultClock{}
	}
	return &Engine{
		config:   config,
		invoker:  invoker,
		recorder: recorder,
		metrics:  m,
	}, nil
}

// Run submits every job to the worker pool and returns immediately. Results are read from the
// returned Stream. Cancelling ctx stops jobs from being started; it never interrupts a running solver.
func (e *Engine) Run(ctx *runctx.Context, jobList []jobs.Descriptor) *Stream {
	s := newStream(ctx, len(jobList))
	e.metrics.SetJobsPlanned(len(jobList))

	go func() {
		defer close(s.done)
		util.ProcessItemsWithThreadPool(ctx, e.config.MaxWorkers, jobList, func(i int, job jobs.Descriptor) {
			s.slots[i] <- e.execute(ctx, s, i, job)
		})
	}()
	return s
}

func (e *Engine) execute(ctx *runctx.Context, s *Stream, index int, job jobs.Descriptor) Result {
	log := runctx.WithJob(ctx, job, index).Log
	result := Result{Index: index, Job: job}

	if e.config.CancelPendingOnFailure && s.failedBefore(index) {
		log.Debug("not starting job after an earlier failure")
		result.Outcome = Cancelled
		e.metrics.RecordOutcome(result.Outcome)
		return result
	}

	outputPath := output.Resolve(e.config.OutputFolder, job)
	exists, err := output.Exists(outputPath)
	if exists {
		log.Debugf("output %s already exists, skipping", outputPath)
		result.Outcome = Skipped
		e.metrics.RecordOutcome(result.Outcome)
		return result
	}

	if err != nil {
		result.Err = err
	} else if err := output.Prepare(outputPath); err != nil {
		result.Err = err
	} else {
		instancePath := output.InstancePath(e.config.InstancesDir, e.config.InstanceExtension, job)
		log.Debugf("running solver on %s", instancePath)
		start := e.config.Clock.Now()
		e.metrics.SolverStarted()
		result.ExitCode, result.Err = e.invoker.Invoke(instancePath, outputPath, solver.TimeBudget)
		result.Duration = e.config.Clock.Now().Sub(start)
		e.metrics.SolverFinished(result.Duration)
	}

	if result.Err == nil && result.ExitCode == 0 {
		result.Outcome = Completed
		log.WithField("duration", result.Duration).Debug("job completed")
	} else {
		result.Outcome = Failed
		s.markFailed(index)
		if result.Err != nil {
			logging.WithStacktrace(log, result.Err).Warn("job failed")
		} else {
			log.WithField("exitCode", result.ExitCode).Warn("job failed")
		}
		if err := e.recorder.Record(job); err != nil {
			logging.WithStacktrace(log, err).Error("unable to record failed job")
		}
	}
	e.metrics.RecordOutcome(result.Outcome)
	return result
}

const noFailure = math.MaxInt64

// Stream yields the results of a run in submission order. It must only be consumed from a single goroutine.
type Stream struct {
	ctx *runctx.Context
	// One holder per submitted job, indexed by submission position. Each receives exactly one result.
	slots []chan Result
	next  int
	// Set once a failed result has been yielded; nothing is yielded after that.
	halted bool
	// Lowest index of any job that has failed so far.
	firstFailure atomic.Int64
	done         chan struct{}
}

// ErrHalted is returned by Next once a failed job has been yielded.
var ErrHalted = errors.New("result stream halted after a job failure")

func newStream(ctx *runctx.Context, n int) *Stream {
	s := &Stream{
		ctx:   ctx,
		slots: make([]chan Result, n),
		done:  make(chan struct{}),
	}
	for i := range s.slots {
		s.slots[i] = make(chan Result, 1)
	}
	s.firstFailure.Store(noFailure)
	return s
}

// Len is the number of jobs submitted.
func (s *Stream) Len() int {
	return len(s.slots)
}

// Next blocks until the result of the next job in submission order is available.
// It returns io.EOF once every result has been yielded. A Failed result is returned together
// with a *JobExecutionError and ends the stream: later calls return ErrHalted while jobs that were
// already running carry on in the background.
func (s *Stream) Next() (Result, error) {
	if s.halted {
		return Result{}, ErrHalted
	}
	if s.next >= len(s.slots) {
		return Result{}, io.EOF
	}

	var result Result
	select {
	case result = <-s.slots[s.next]:
	default:
		select {
		case result = <-s.slots[s.next]:
		case <-s.ctx.Done():
			return Result{}, errors.WithStack(s.ctx.Err())
		}
	}
	s.next++

	if result.Outcome == Failed {
		s.halted = true
		return result, errors.WithStack(&JobExecutionError{
			Job:      result.Job,
			ExitCode: result.ExitCode,
			Err:      result.Err,
		})
	}
	return result, nil
}

// Wait blocks until no job of the run is running or will be started.
func (s *Stream) Wait() {
	<-s.done
}

func (s *Stream) markFailed(index int) {
	for {
		current := s.firstFailure.Load()
		if int64(index) >= current || s.firstFailure.CompareAndSwap(current, int64(index)) {
			return
		}
	}
}

func (s *Stream) failedBefore(index int) bool {
	return s.firstFailure.Load() < int64(index)
}
