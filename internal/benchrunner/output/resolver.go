// Package output maps jobs onto files. The path of a job's output is a pure function of
// the output folder and the job, which is what lets an interrupted run be resumed: any job
// whose output file is already present is considered done.
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
)

const DefaultInstanceExtension = ".dat"

// Resolve returns {folder}/{instanceSet}/{name}_{betaParam}_{repetitionId}.txt
func Resolve(folder string, job jobs.Descriptor) string {
	return filepath.Join(
		folder,
		job.InstanceSet,
		fmt.Sprintf("%s_%s_%d.txt", job.Name, job.BetaParam, job.RepetitionId),
	)
}

// InstancePath returns {instancesDir}/{instanceSet}/{name}_{betaParam}{extension}
func InstancePath(instancesDir string, extension string, job jobs.Descriptor) string {
	return filepath.Join(instancesDir, job.InstanceSet, fmt.Sprintf("%s_%s%s", job.Name, job.BetaParam, extension))
}

// Exists reports whether path is present right now. Only a clean "not found" means absent;
// any other failure to stat path is returned so that the job is not mistaken for done.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "checking for output %s", path)
}

// Prepare creates the directory the solver will write path into.
func Prepare(path string) error {
	return errors.WithStack(os.MkdirAll(filepath.Dir(path), 0o755))
}
