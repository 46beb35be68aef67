package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/benchrunner/internal/benchrunner/failures"
	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
	"github.com/G-Research/benchrunner/internal/benchrunner/metrics"
	"github.com/G-Research/benchrunner/internal/benchrunner/output"
	"github.com/G-Research/benchrunner/internal/benchrunner/solver"
	"github.com/G-Research/benchrunner/internal/common/runctx"
	"github.com/G-Research/benchrunner/internal/common/util"
)

type behaviour struct {
	delay    time.Duration
	exitCode int
	err      error
}

// fakeSolver writes the output file on success, like the real solver does.
type fakeSolver struct {
	behaviours map[string]behaviour
	running    int32
	maxRunning int32
	mu         sync.Mutex
	invoked    []string
}

func newFakeSolver() *fakeSolver {
	return &fakeSolver{behaviours: map[string]behaviour{}}
}

func (f *fakeSolver) set(job jobs.Descriptor, b behaviour) *fakeSolver {
	f.behaviours[output.InstancePath("instances", ".dat", job)] = b
	return f
}

func (f *fakeSolver) Invoke(instancePath string, outputPath string, timeBudget time.Duration) (int, error) {
	current := atomic.AddInt32(&f.running, 1)
	defer atomic.AddInt32(&f.running, -1)
	for {
		observed := atomic.LoadInt32(&f.maxRunning)
		if current <= observed || atomic.CompareAndSwapInt32(&f.maxRunning, observed, current) {
			break
		}
	}

	f.mu.Lock()
	f.invoked = append(f.invoked, instancePath)
	f.mu.Unlock()

	if timeBudget != solver.TimeBudget {
		return -1, errors.Errorf("unexpected time budget %s", timeBudget)
	}

	b := f.behaviours[instancePath]
	time.Sleep(b.delay)
	if b.err != nil || b.exitCode != 0 {
		return b.exitCode, b.err
	}
	return 0, os.WriteFile(outputPath, []byte("solution"), 0o644)
}

func (f *fakeSolver) invocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invoked)
}

func testJobs(n int) []jobs.Descriptor {
	result := make([]jobs.Descriptor, n)
	for i := range result {
		result[i] = jobs.Descriptor{InstanceSet: "set", Name: string(rune('A' + i)), BetaParam: "1", RepetitionId: 1}
	}
	return result
}

func newTestEngine(t *testing.T, folder string, workers int, s solver.Invoker, cancelPending bool) *Engine {
	t.Helper()
	e, err := New(Config{
		OutputFolder:           folder,
		InstancesDir:           "instances",
		InstanceExtension:      ".dat",
		MaxWorkers:             workers,
		CancelPendingOnFailure: cancelPending,
	}, s, failures.NewFileRecorder(folder), metrics.New())
	require.NoError(t, err)
	return e
}

// drain consumes the stream until it ends, returning what was yielded and the terminating error.
func drain(stream *Stream) ([]Result, error) {
	var results []Result
	for {
		result, err := stream.Next()
		if err == io.EOF {
			return results, nil
		}
		if err != nil {
			if result.Outcome == Failed {
				results = append(results, result)
			}
			return results, err
		}
		results = append(results, result)
	}
}

func jobsOf(results []Result) []jobs.Descriptor {
	var out []jobs.Descriptor
	for _, r := range results {
		out = append(out, r.Job)
	}
	return out
}

func TestNew_RequiresWorkers(t *testing.T) {
	_, err := New(Config{MaxWorkers: 0}, newFakeSolver(), failures.NewFileRecorder(t.TempDir()), metrics.New())
	assert.Error(t, err)
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	folder := t.TempDir()
	jobList := testJobs(5)

	first := newFakeSolver()
	results, err := drain(newTestEngine(t, folder, 2, first, false).Run(runctx.Background(), jobList))
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, Completed, r.Outcome)
	}
	assert.Equal(t, 5, first.invocations())

	second := newFakeSolver()
	results, err = drain(newTestEngine(t, folder, 2, second, false).Run(runctx.Background(), jobList))
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, Skipped, r.Outcome)
	}
	assert.Equal(t, 0, second.invocations())
}

func TestRun_YieldsInSubmissionOrder(t *testing.T) {
	jobList := testJobs(8)
	s := newFakeSolver()
	// Earlier jobs take longer, so completion order is roughly the reverse of submission order.
	for i, job := range jobList {
		s.set(job, behaviour{delay: time.Duration(len(jobList)-i) * 10 * time.Millisecond})
	}

	stream := newTestEngine(t, t.TempDir(), 4, s, false).Run(runctx.Background(), jobList)
	results, err := drain(stream)
	require.NoError(t, err)

	if diff := cmp.Diff(jobList, jobsOf(results)); diff != "" {
		t.Fatalf("results out of submission order (-want +got):\n%s", diff)
	}
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	for _, workers := range []int{1, 3, 7} {
		jobList := testJobs(20)
		s := newFakeSolver()
		for _, job := range jobList {
			s.set(job, behaviour{delay: 5 * time.Millisecond})
		}

		_, err := drain(newTestEngine(t, t.TempDir(), workers, s, false).Run(runctx.Background(), jobList))
		require.NoError(t, err)
		assert.LessOrEqual(t, s.maxRunning, int32(workers))
		assert.Equal(t, 20, s.invocations())
	}
}

func TestRun_SkipsOnlyExistingOutput(t *testing.T) {
	folder := t.TempDir()
	jobList := testJobs(5)
	existing := output.Resolve(folder, jobList[2])
	require.NoError(t, output.Prepare(existing))
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	s := newFakeSolver()
	results, err := drain(newTestEngine(t, folder, 3, s, false).Run(runctx.Background(), jobList))
	require.NoError(t, err)

	skipped := 0
	for _, r := range results {
		if r.Outcome == Skipped {
			skipped++
			assert.Equal(t, jobList[2], r.Job)
		}
	}
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 4, s.invocations())
}

func TestRun_FailureHaltsConsumption(t *testing.T) {
	folder := t.TempDir()
	jobList := testJobs(5)
	s := newFakeSolver().set(jobList[2], behaviour{exitCode: 1})

	stream := newTestEngine(t, folder, 2, s, false).Run(runctx.Background(), jobList)
	results, err := drain(stream)

	var jobErr *JobExecutionError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, jobList[2], jobErr.Job)
	assert.Equal(t, 1, jobErr.ExitCode)
	assert.Equal(t, jobList[:3], jobsOf(results))
	assert.Equal(t, Failed, results[2].Outcome)

	_, err = stream.Next()
	assert.Equal(t, ErrHalted, err)

	stream.Wait()
	content, err := os.ReadFile(filepath.Join(folder, failures.FileName))
	require.NoError(t, err)
	assert.Equal(t, jobList[2].String()+"\n", string(content))
}

func TestRun_FailedJobKeepsLaterJobsRunning(t *testing.T) {
	folder := t.TempDir()
	jobList := testJobs(3)
	a, b, c := jobList[0], jobList[1], jobList[2]
	s := newFakeSolver().
		set(b, behaviour{exitCode: 2, delay: 20 * time.Millisecond})

	stream := newTestEngine(t, folder, 2, s, false).Run(runctx.Background(), jobList)

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, a, first.Job)
	assert.Equal(t, Completed, first.Outcome)

	second, err := stream.Next()
	var jobErr *JobExecutionError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, b, second.Job)

	// C is never reported, but still runs to completion.
	stream.Wait()
	assert.FileExists(t, output.Resolve(folder, c))
	assert.Equal(t, 3, s.invocations())

	content, err := os.ReadFile(filepath.Join(folder, failures.FileName))
	require.NoError(t, err)
	assert.Equal(t, b.String()+"\n", string(content))
}

func TestRun_CancelPendingOnFailure(t *testing.T) {
	jobList := testJobs(4)

	tests := map[string]struct {
		cancelPending       bool
		expectedInvocations int
	}{
		"pending jobs still run": {cancelPending: false, expectedInvocations: 4},
		"pending jobs cancelled": {cancelPending: true, expectedInvocations: 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := newFakeSolver().set(jobList[0], behaviour{exitCode: 1})
			stream := newTestEngine(t, t.TempDir(), 1, s, tc.cancelPending).Run(runctx.Background(), jobList)

			results, err := drain(stream)
			var jobErr *JobExecutionError
			require.True(t, errors.As(err, &jobErr))
			assert.Equal(t, jobList[:1], jobsOf(results))

			stream.Wait()
			assert.Equal(t, tc.expectedInvocations, s.invocations())
		})
	}
}

func TestRun_SolverCannotStart(t *testing.T) {
	jobList := testJobs(1)
	cause := errors.New("exec: not found")
	s := newFakeSolver().set(jobList[0], behaviour{exitCode: -1, err: cause})

	results, err := drain(newTestEngine(t, t.TempDir(), 1, s, false).Run(runctx.Background(), jobList))
	var jobErr *JobExecutionError
	require.True(t, errors.As(err, &jobErr))
	assert.ErrorIs(t, err, cause)
	require.Len(t, results, 1)
	assert.Equal(t, cause, results[0].Err)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := runctx.WithCancel(runctx.Background())
	cancel()

	s := newFakeSolver()
	stream := newTestEngine(t, t.TempDir(), 2, s, false).Run(ctx, testJobs(3))
	_, err := stream.Next()
	assert.ErrorIs(t, err, context.Canceled)

	stream.Wait()
	assert.Equal(t, 0, s.invocations())
}

func TestRun_EmptyJobList(t *testing.T) {
	stream := newTestEngine(t, t.TempDir(), 2, newFakeSolver(), false).Run(runctx.Background(), nil)
	assert.Equal(t, 0, stream.Len())
	_, err := stream.Next()
	assert.Equal(t, io.EOF, err)
	stream.Wait()
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}

type clockAdvancingSolver struct {
	clock *util.DummyClock
	step  time.Duration
}

func (s *clockAdvancingSolver) Invoke(_ string, outputPath string, _ time.Duration) (int, error) {
	s.clock.Advance(s.step)
	return 0, os.WriteFile(outputPath, nil, 0o644)
}

func TestRun_DurationMeasuredWithClock(t *testing.T) {
	folder := t.TempDir()
	clock := &util.DummyClock{T: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, err := New(Config{
		OutputFolder: folder,
		MaxWorkers:   1,
		Clock:        clock,
	}, &clockAdvancingSolver{clock: clock, step: 42 * time.Second}, failures.NewFileRecorder(folder), metrics.New())
	require.NoError(t, err)

	stream := e.Run(runctx.Background(), testJobs(2))
	results, err := drain(stream)
	stream.Wait()

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, Completed, result.Outcome)
		assert.Equal(t, 42*time.Second, result.Duration)
	}
}

func TestRun_UncheckableOutputFails(t *testing.T) {
	folder := t.TempDir()
	jobList := testJobs(2)
	// Outputs go under {folder}/set, which here is a regular file.
	require.NoError(t, os.WriteFile(filepath.Join(folder, "set"), []byte("not a directory"), 0o644))
	s := newFakeSolver()
	e := newTestEngine(t, folder, 2, s, false)

	stream := e.Run(runctx.Background(), jobList)
	results, err := drain(stream)
	stream.Wait()

	var jobErr *JobExecutionError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, jobList[0], jobErr.Job)
	assert.Error(t, jobErr.Err)
	require.Len(t, results, 1)
	assert.Equal(t, Failed, results[0].Outcome)
	assert.Equal(t, 0, s.invocations())

	content, err := os.ReadFile(filepath.Join(folder, failures.FileName))
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{jobList[0].String(), jobList[1].String()},
		strings.Split(strings.TrimSpace(string(content)), "\n"))
}
