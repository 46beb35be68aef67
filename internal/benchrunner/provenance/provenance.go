// Package provenance ties the files of a run to the code revision that produced them.
package provenance

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const FileName = "git-commit.hash"

// ProvenanceError means the output folder could not be stamped. No job may run after one.
type ProvenanceError struct {
	Folder string
	Err    error
}

func (err *ProvenanceError) Error() string {
	return fmt.Sprintf("cannot record provenance in %s: %s", err.Folder, err.Err)
}

func (err *ProvenanceError) Unwrap() error {
	return err.Err
}

// RevisionSource returns the identifier of the code version doing the run.
type RevisionSource interface {
	Revision() (string, error)
}

// GitRevision reads HEAD of the git repository containing Dir (the working directory if empty).
type GitRevision struct {
	Dir string
}

func (g *GitRevision) Revision() (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = g.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", errors.Errorf("git rev-parse HEAD: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", errors.Wrap(err, "git rev-parse HEAD")
	}
	revision := strings.TrimSpace(string(out))
	if revision == "" {
		return "", errors.New("git rev-parse HEAD returned no revision")
	}
	return revision, nil
}

// StaticRevision is a RevisionSource for a revision known up front, e.g. one baked in at build time.
type StaticRevision string

func (s StaticRevision) Revision() (string, error) {
	if s == "" {
		return "", errors.New("no revision available")
	}
	return string(s), nil
}

// Stamp creates folder if needed and overwrites {folder}/git-commit.hash with the current revision.
func Stamp(folder string, source RevisionSource) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return errors.WithStack(&ProvenanceError{Folder: folder, Err: err})
	}
	revision, err := source.Revision()
	if err != nil {
		return errors.WithStack(&ProvenanceError{Folder: folder, Err: err})
	}
	if err := os.WriteFile(filepath.Join(folder, FileName), []byte(revision+"\n"), 0o644); err != nil {
		return errors.WithStack(&ProvenanceError{Folder: folder, Err: err})
	}
	return nil
}
