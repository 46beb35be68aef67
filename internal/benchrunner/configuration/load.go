package configuration

import (
	"os"
	"reflect"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/G-Research/benchrunner/internal/benchrunner/errs"
	"github.com/G-Research/benchrunner/internal/benchrunner/output"
	"github.com/G-Research/benchrunner/internal/common/logging"
)

const (
	DefaultConfigPath = "config/benchrunner.yaml"
	ConfigPathEnvVar  = "BENCHRUNNER_CONFIG"
	EnvPrefix         = "BENCHRUNNER"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		CommandDecodeHook(),
	)),
}

func CommandDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(Command{}) {
			return data, nil
		}
		return Command(strings.Fields(data.(string))), nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manifest", "jobs.yaml")
	v.SetDefault("instancesDir", "../instances")
	v.SetDefault("instanceExtension", output.DefaultInstanceExtension)
	v.SetDefault("solver.command", []string{"julia", "executor.jl"})
	v.SetDefault("solver.workDir", "")
	v.SetDefault("solver.killGrace", "0s")
	v.SetDefault("engine.cancelPendingOnFailure", false)
	v.SetDefault("provenance.repositoryDir", "")
	v.SetDefault("provenance.revision", "")
	v.SetDefault("metrics.textfile", false)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logging.FormatCommandLine)
}

// ConfigPath is the file named by BENCHRUNNER_CONFIG, or the default location.
// The default location is allowed to not exist.
func ConfigPath() (path string, required bool) {
	if value, exists := os.LookupEnv(ConfigPathEnvVar); exists {
		return value, true
	}
	return DefaultConfigPath, false
}

// Load builds the configuration from defaults, then the config file, then BENCHRUNNER_* env vars.
// Nested keys are addressed with underscores, e.g. BENCHRUNNER_SOLVER_KILLGRACE.
func Load(path string, required bool) (*BenchRunnerConfiguration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if required || !os.IsNotExist(errors.Cause(err)) {
				return nil, errors.Wrapf(err, "reading config file %s", path)
			}
		}
	}

	config := &BenchRunnerConfiguration{}
	if err := v.Unmarshal(config, CustomHooks...); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *BenchRunnerConfiguration) Validate() error {
	var result *multierror.Error
	if c.Manifest == "" {
		result = multierror.Append(result, &errs.ErrInvalidArgument{
			Name:    "manifest",
			Value:   c.Manifest,
			Message: "not provided",
		})
	}
	if len(c.Solver.Command) == 0 {
		result = multierror.Append(result, &errs.ErrInvalidArgument{
			Name:    "solver.command",
			Value:   c.Solver.Command,
			Message: "not provided",
		})
	}
	if c.Solver.KillGrace < 0 {
		result = multierror.Append(result, &errs.ErrInvalidArgument{
			Name:    "solver.killGrace",
			Value:   c.Solver.KillGrace,
			Message: "must not be negative",
		})
	}
	if c.InstanceExtension != "" && !strings.HasPrefix(c.InstanceExtension, ".") {
		result = multierror.Append(result, &errs.ErrInvalidArgument{
			Name:    "instanceExtension",
			Value:   c.InstanceExtension,
			Message: "must start with a dot",
		})
	}
	if err := c.Logging.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
