// Package repo locates the enclosing git repository and derives the
// paths of the work-state directory and per-workstream files.
package repo

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AlbertoV5/workstream/internal/errors"
)

// WorkDirName is the name of the work-state directory at the repo root.
const WorkDirName = ".work"

// FindRoot returns the top-level directory of the git repository that
// contains startDir. Returns ErrNotRepository if startDir is not inside
// a git repository.
func FindRoot(startDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = startDir
	output, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(errors.ErrNotRepository, "git rev-parse in %s", startDir)
	}
	return strings.TrimSpace(string(output)), nil
}

// FindRootFromCwd locates the repository root from the current working
// directory.
func FindRootFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get current directory")
	}
	return FindRoot(cwd)
}

// WorkDir returns the work-state directory for the repository root.
func WorkDir(root string) string {
	return filepath.Join(root, WorkDirName)
}

// IndexPath returns the path of the workstream registry file.
func IndexPath(root string) string {
	return filepath.Join(WorkDir(root), "index.json")
}

// StreamDir returns the state directory for a single workstream.
func StreamDir(root, streamID string) string {
	return filepath.Join(WorkDir(root), "streams", streamID)
}

// PlanPath returns the path of a workstream's PLAN.md.
func PlanPath(root, streamID string) string {
	return filepath.Join(StreamDir(root, streamID), "PLAN.md")
}

// TasksStagingPath returns the path of a workstream's TASKS.md staging file.
func TasksStagingPath(root, streamID string) string {
	return filepath.Join(StreamDir(root, streamID), "TASKS.md")
}

// TasksPath returns the path of a workstream's task ledger.
func TasksPath(root, streamID string) string {
	return filepath.Join(StreamDir(root, streamID), "tasks.json")
}

// ThreadsPath returns the path of a workstream's thread session ledger.
func ThreadsPath(root, streamID string) string {
	return filepath.Join(StreamDir(root, streamID), "threads.json")
}

// PromptsDir returns the directory holding per-thread prompt files.
func PromptsDir(root, streamID string) string {
	return filepath.Join(StreamDir(root, streamID), "prompts")
}

// EnsureStreamDir creates the state directory for a workstream.
func EnsureStreamDir(root, streamID string) error {
	if err := os.MkdirAll(StreamDir(root, streamID), 0755); err != nil {
		return errors.Wrapf(err, "failed to create stream directory for %s", streamID)
	}
	return nil
}

// EnsureWorkDir creates the work-state directory.
func EnsureWorkDir(root string) error {
	if err := os.MkdirAll(WorkDir(root), 0755); err != nil {
		return errors.Wrap(err, "failed to create work directory")
	}
	return nil
}
