package benchrunner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/benchrunner/internal/benchrunner/build"
	"github.com/G-Research/benchrunner/internal/benchrunner/configuration"
	"github.com/G-Research/benchrunner/internal/benchrunner/engine"
	"github.com/G-Research/benchrunner/internal/benchrunner/errs"
	"github.com/G-Research/benchrunner/internal/benchrunner/failures"
	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
	"github.com/G-Research/benchrunner/internal/benchrunner/metrics"
	"github.com/G-Research/benchrunner/internal/benchrunner/progress"
	"github.com/G-Research/benchrunner/internal/benchrunner/provenance"
	"github.com/G-Research/benchrunner/internal/benchrunner/solver"
	"github.com/G-Research/benchrunner/internal/common/logging"
	"github.com/G-Research/benchrunner/internal/common/runctx"
	"github.com/G-Research/benchrunner/internal/common/util"
)

const DefaultWorkerCount = 10

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is where the progress line is drawn. Defaults to standard out,
	// but can be overridden in tests to make assertions on the application's output.
	Out io.Writer
	// Clock and Load feed the progress line. Tests replace them to get deterministic output.
	Clock util.Clock
	Load  progress.LoadSource
	// Capacity is shown next to the load average. Defaults to the number of CPUs.
	Capacity int
	// The fields below are built from Params.Config when left nil.
	Source    jobs.Source
	Invoker   solver.Invoker
	Revisions provenance.RevisionSource
}

// Params struct holds all user-customizable parameters.
type Params struct {
	OutputFolder string
	WorkerCount  int
	Config       *configuration.BenchRunnerConfiguration
}

// New instantiates an App with default parameters, including standard output and the system clock.
func New() *App {
	return &App{
		Params:   &Params{WorkerCount: DefaultWorkerCount},
		Out:      os.Stdout,
		Clock:    &util.DefaultClock{},
		Load:     progress.SystemLoad,
		Capacity: runtime.NumCPU(),
	}
}

func (a *App) validateParams() error {
	if a.Params.OutputFolder == "" {
		return errors.WithStack(&errs.ErrInvalidArgument{
			Name:    "outputFolder",
			Value:   a.Params.OutputFolder,
			Message: "not provided",
		})
	}
	if a.Params.WorkerCount < 1 {
		return errors.WithStack(&errs.ErrInvalidArgument{
			Name:    "workerCount",
			Value:   a.Params.WorkerCount,
			Message: "at least one worker is required",
		})
	}
	if a.Params.Config == nil {
		return errors.New("no configuration loaded")
	}
	return nil
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	fmt.Fprintf(w, "Solver time budget:\t%s\n", solver.TimeBudget)
	return nil
}

// Run stamps the output folder, runs every job and reports progress until all jobs have been
// accounted for or one of them fails. It only returns once no job is running any more.
func (a *App) Run(ctx *runctx.Context) error {
	if err := a.validateParams(); err != nil {
		return err
	}
	config := a.Params.Config
	folder := a.Params.OutputFolder
	ctx = runctx.WithLogFields(ctx, logrus.Fields{"runId": util.NewRunId(a.Clock), "outputFolder": folder})

	if err := provenance.Stamp(folder, a.revisions()); err != nil {
		return err
	}

	jobList, err := a.source().Jobs()
	if err != nil {
		return errors.WithMessage(err, "loading jobs")
	}

	invoker, err := a.invoker()
	if err != nil {
		return err
	}

	m := metrics.New()
	restoreHooks := addLogHook(ctx.Log.Logger, logging.NewPrometheusHook(m.Registry()))
	defer restoreHooks()

	e, err := engine.New(engine.Config{
		OutputFolder:           folder,
		InstancesDir:           config.InstancesDir,
		InstanceExtension:      config.InstanceExtension,
		MaxWorkers:             a.Params.WorkerCount,
		CancelPendingOnFailure: config.Engine.CancelPendingOnFailure,
		Clock:                  a.Clock,
	}, invoker, failures.NewFileRecorder(folder), m)
	if err != nil {
		return err
	}

	runCtx, stopMetrics := runctx.WithCancel(ctx)
	defer stopMetrics()
	g, runCtx := runctx.ErrGroup(runCtx)
	if config.Metrics.Port != 0 {
		g.Go(func() error { return m.Serve(runCtx, config.Metrics.Port) })
	}

	ctx.Log.Debugf("running %d jobs on %d workers", len(jobList), a.Params.WorkerCount)
	start := a.Clock.Now()
	stream := e.Run(ctx, jobList)
	runErr := a.consume(ctx, stream)

	if runErr != nil {
		logging.WithStacktrace(ctx.Log, runErr).Error("run stopped")
		ctx.Log.Info("waiting for jobs that are still running")
	}
	stream.Wait()

	if config.Metrics.Textfile {
		if err := m.WriteTextfile(filepath.Join(folder, metrics.TextfileName)); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warn("unable to write metrics textfile")
		}
	}
	stopMetrics()
	if err := g.Wait(); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("metrics server failed")
	}

	if runErr == nil {
		ctx.Log.Infof("processed %d jobs in %s", stream.Len(), a.Clock.Now().Sub(start).Truncate(time.Second))
	}
	return runErr
}

func (a *App) consume(ctx *runctx.Context, stream *engine.Stream) error {
	reporter := progress.NewReporter(ctx.Log, a.Out, a.Clock, a.Load, a.Capacity, stream.Len())
	reporter.Start()
	defer reporter.Finish()
	for {
		result, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		reporter.Report(result.Job)
	}
}

func (a *App) source() jobs.Source {
	if a.Source != nil {
		return a.Source
	}
	return &jobs.ManifestSource{Path: a.Params.Config.Manifest}
}

func (a *App) invoker() (solver.Invoker, error) {
	if a.Invoker != nil {
		return a.Invoker, nil
	}
	solverConfig := a.Params.Config.Solver
	return solver.NewExecInvoker(solverConfig.Command, solverConfig.WorkDir, solverConfig.KillGrace)
}

func (a *App) revisions() provenance.RevisionSource {
	if a.Revisions != nil {
		return a.Revisions
	}
	if revision := a.Params.Config.Provenance.Revision; revision != "" {
		return provenance.StaticRevision(revision)
	}
	return &provenance.GitRevision{Dir: a.Params.Config.Provenance.RepositoryDir}
}

// addLogHook adds hook to logger for the duration of a run and returns a function restoring the previous hooks.
// It must be called before the run starts logging.
func addLogHook(logger *logrus.Logger, hook logrus.Hook) func() {
	previous := make(logrus.LevelHooks)
	hooks := make(logrus.LevelHooks)
	for level, levelHooks := range logger.Hooks {
		previous[level] = append([]logrus.Hook(nil), levelHooks...)
		hooks[level] = append([]logrus.Hook(nil), levelHooks...)
	}
	hooks.Add(hook)
	logger.ReplaceHooks(hooks)
	return func() { logger.ReplaceHooks(previous) }
}
