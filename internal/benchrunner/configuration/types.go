package configuration

import (
	"time"

	"github.com/G-Research/benchrunner/internal/common/logging"
)

type BenchRunnerConfiguration struct {
	// YAML file listing the jobs of the run.
	Manifest string
	// Root directory of benchmark instance files.
	InstancesDir string
	// Extension of benchmark instance files, including the dot.
	InstanceExtension string
	Solver            SolverConfig
	Engine            EngineConfig
	Provenance        ProvenanceConfig
	Metrics           MetricsConfig
	Logging           logging.Config
}

// Command is an executable followed by its leading arguments. In env vars and flat
// config values it may be given as a single whitespace separated string.
type Command []string

type SolverConfig struct {
	Command Command
	// Working directory of solver processes; empty means the current directory.
	WorkDir string
	// If positive, solver processes are killed once they exceed the time budget by this much.
	KillGrace time.Duration
}

type EngineConfig struct {
	// Don't start queued jobs once any job has failed.
	CancelPendingOnFailure bool
}

type ProvenanceConfig struct {
	// Git repository whose HEAD is recorded; empty means the current directory.
	RepositoryDir string
	// Recorded instead of asking git when set, e.g. when running from a source export.
	Revision string
}

type MetricsConfig struct {
	// Write metrics.prom into the output folder at the end of the run.
	Textfile bool
	// Serve /metrics on this port while the run is in progress. 0 disables the server.
	Port uint16
}
