package repo

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/AlbertoV5/workstream/internal/errors"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Skipf("git not available: %v", err)
	}
	// macOS tempdirs resolve through symlinks; normalize like git does.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	return resolved
}

func TestFindRoot(t *testing.T) {
	root := initGitRepo(t)

	got, err := FindRoot(root)
	if err != nil {
		t.Fatalf("FindRoot: %v", err)
	}
	if got != root {
		t.Errorf("FindRoot = %q, want %q", got, root)
	}
}

func TestFindRootOutsideRepository(t *testing.T) {
	dir := t.TempDir()

	_, err := FindRoot(dir)
	if !errors.Is(err, errors.ErrNotRepository) {
		t.Errorf("expected ErrNotRepository, got %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	root := "/repo"
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"work dir", WorkDir(root), "/repo/.work"},
		{"index", IndexPath(root), "/repo/.work/index.json"},
		{"stream dir", StreamDir(root, "001-demo"), "/repo/.work/streams/001-demo"},
		{"plan", PlanPath(root, "001-demo"), "/repo/.work/streams/001-demo/PLAN.md"},
		{"staging", TasksStagingPath(root, "001-demo"), "/repo/.work/streams/001-demo/TASKS.md"},
		{"tasks", TasksPath(root, "001-demo"), "/repo/.work/streams/001-demo/tasks.json"},
		{"threads", ThreadsPath(root, "001-demo"), "/repo/.work/streams/001-demo/threads.json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != filepath.FromSlash(tc.want) {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}
