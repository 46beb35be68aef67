package solver

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/G-Research/benchrunner/internal/benchrunner/errs"
)

// TimeBudget is the wall-clock limit handed to every solver run: ten minutes scaled by 1976/1201 and
// truncated to whole seconds. Reference outputs were produced with exactly this value.
const TimeBudget = time.Duration(600*1976/1201) * time.Second

// Invoker runs the solver for one instance and reports its exit code.
// A non-nil error means the solver could not be run at all.
type Invoker interface {
	Invoke(instancePath string, outputPath string, timeBudget time.Duration) (int, error)
}

// ExecInvoker runs the solver as an external process:
//
//	<Command...> <instancePath> -o <outputPath> -t <seconds>
//
// stdout and stderr are discarded.
type ExecInvoker struct {
	command []string
	workDir string
	// If positive, the process is killed once it has outlived its time budget by this much.
	killGrace time.Duration
}

func NewExecInvoker(command []string, workDir string, killGrace time.Duration) (*ExecInvoker, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.WithStack(&errs.ErrInvalidArgument{
			Name:    "solver.command",
			Value:   command,
			Message: "no solver command configured",
		})
	}
	expanded := make([]string, len(command))
	copy(expanded, command)
	executable, err := homedir.Expand(command[0])
	if err != nil {
		return nil, errors.WithStack(err)
	}
	expanded[0] = executable
	dir, err := homedir.Expand(workDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ExecInvoker{command: expanded, workDir: dir, killGrace: killGrace}, nil
}

// Args returns the full argument vector, executable first.
func (e *ExecInvoker) Args(instancePath string, outputPath string, timeBudget time.Duration) []string {
	args := make([]string, 0, len(e.command)+5)
	args = append(args, e.command...)
	return append(args,
		instancePath,
		"-o", outputPath,
		"-t", strconv.Itoa(int(timeBudget/time.Second)),
	)
}

func (e *ExecInvoker) Invoke(instancePath string, outputPath string, timeBudget time.Duration) (int, error) {
	ctx := context.Background()
	if e.killGrace > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeBudget+e.killGrace)
		defer cancel()
	}

	args := e.Args(instancePath, outputPath, timeBudget)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.workDir

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, errors.Wrapf(err, "starting solver %s", args[0])
	}
	if ctx.Err() != nil {
		return exitErr.ExitCode(), errors.Errorf("solver killed after exceeding time budget %s by %s", timeBudget, e.killGrace)
	}
	return exitErr.ExitCode(), nil
}
