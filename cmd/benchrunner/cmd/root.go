package cmd

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/benchrunner/internal/benchrunner"
	"github.com/G-Research/benchrunner/internal/benchrunner/configuration"
	"github.com/G-Research/benchrunner/internal/benchrunner/errs"
	"github.com/G-Research/benchrunner/internal/common/app"
	"github.com/G-Research/benchrunner/internal/common/logging"
	"github.com/G-Research/benchrunner/internal/common/runctx"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	return rootCmd(benchrunner.New())
}

func rootCmd(a *benchrunner.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchrunner <outputFolder> [workerCount]",
		Short: "benchrunner runs a solver over every benchmark instance of a run.",
		Long: `benchrunner runs a solver over every benchmark instance of a run.

Results are written to <outputFolder>/<instanceSet>/<name>_<beta>_<repetition>.txt.
Jobs whose result file already exists are skipped, so an interrupted run can be resumed
by running the same command again. Failed jobs are listed in <outputFolder>/errors.txt.

Up to workerCount solvers (default 10) run at the same time.

Configuration is read from ./config/benchrunner.yaml, or from the file named by
$BENCHRUNNER_CONFIG. Any setting can be overridden with a BENCHRUNNER_ environment
variable, e.g. BENCHRUNNER_SOLVER_KILLGRACE=30s.`,
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := runctx.New(app.CreateContextWithShutdown(), logrus.NewEntry(logrus.StandardLogger()))
			return a.Run(ctx)
		},
	}

	cmd.AddCommand(versionCmd(a))

	return cmd
}

// Print version info and exit.
func versionCmd(a *benchrunner.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return a.Version()
		},
	}
	return cmd
}

func initParams(a *benchrunner.App, args []string) error {
	a.Params.OutputFolder = args[0]
	if len(args) > 1 {
		workerCount, err := strconv.Atoi(args[1])
		if err != nil || workerCount < 1 {
			return errors.WithStack(&errs.ErrInvalidArgument{
				Name:    "workerCount",
				Value:   args[1],
				Message: "must be a positive integer",
			})
		}
		a.Params.WorkerCount = workerCount
	}

	config, err := configuration.Load(configuration.ConfigPath())
	if err != nil {
		return err
	}
	if err := logging.Configure(config.Logging, logrus.StandardLogger().Out); err != nil {
		return err
	}
	a.Params.Config = config
	return nil
}
