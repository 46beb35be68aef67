package failures

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
)

const FileName = "errors.txt"

// Recorder persists the identity of jobs whose solver run failed.
type Recorder interface {
	Record(job jobs.Descriptor) error
}

// FileRecorder appends one line per failed job to {folder}/errors.txt. The file is
// created on the first failure. Lines written by concurrent workers never interleave.
type FileRecorder struct {
	path string
	mu   sync.Mutex
}

func NewFileRecorder(folder string) *FileRecorder {
	return &FileRecorder{path: filepath.Join(folder, FileName)}
}

func (r *FileRecorder) Path() string {
	return r.path
}

func (r *FileRecorder) Record(job jobs.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WithStack(err)
	}
	// A single write per line keeps lines whole even with other writers appending to the file.
	if _, err := f.Write([]byte(job.String() + "\n")); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	return errors.Wrapf(f.Close(), "closing %s", r.path)
}
