package taskstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/repo"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	if err := repo.EnsureStreamDir(root, "001-demo"); err != nil {
		t.Fatalf("EnsureStreamDir: %v", err)
	}
	return NewStore(root, "001-demo", fstore.NewLocker())
}

func task(id, name string) Task {
	return Task{
		ID:         id,
		Name:       name,
		StageName:  "Stage",
		BatchName:  "Batch",
		ThreadName: "Thread",
		Status:     StatusPending,
	}
}

func TestReadMissingFileYieldsEmptyLedger(t *testing.T) {
	s := newTestStore(t)
	f, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.Tasks) != 0 || f.StreamID != "001-demo" {
		t.Errorf("unexpected ledger: %+v", f)
	}
}

func TestAddTasksUpsertPreservesExecutionState(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddTasks([]Task{task("01.01.01.01", "original")}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	status := StatusCompleted
	report := "done and verified"
	if _, err := s.UpdateTaskStatus("01.01.01.01", TaskUpdate{Status: &status, Report: &report}); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	// Re-plan supplies the same ID with new metadata.
	renamed := task("01.01.01.01", "renamed")
	renamed.StageName = "New Stage"
	if err := s.AddTasks([]Task{renamed, task("01.01.01.02", "second")}); err != nil {
		t.Fatalf("AddTasks upsert: %v", err)
	}

	f, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(f.Tasks))
	}
	got := f.Tasks[0]
	if got.Name != "renamed" || got.StageName != "New Stage" {
		t.Errorf("metadata not refreshed: %+v", got)
	}
	if got.Status != StatusCompleted || got.Report != report {
		t.Errorf("execution state clobbered: status=%s report=%q", got.Status, got.Report)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("timestamps wrong: created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestAddTasksRejectsMalformedID(t *testing.T) {
	s := newTestStore(t)
	err := s.AddTasks([]Task{task("1.2.3", "short")})
	var verr *errors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateTaskStatusPartial(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddTasks([]Task{task("01.01.01.01", "t")}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}
	crumb := "touched internal/auth"
	updated, err := s.UpdateTaskStatus("01.01.01.01", TaskUpdate{Breadcrumb: &crumb})
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if updated.Status != StatusPending {
		t.Errorf("status changed unexpectedly: %s", updated.Status)
	}
	if updated.Breadcrumb != crumb {
		t.Errorf("breadcrumb = %q", updated.Breadcrumb)
	}

	if _, err := s.UpdateTaskStatus("09.09.09.09", TaskUpdate{Breadcrumb: &crumb}); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDeleteByPrefix(t *testing.T) {
	s := newTestStore(t)
	err := s.AddTasks([]Task{
		task("01.01.01.01", "a"),
		task("01.01.02.01", "b"),
		task("01.02.01.01", "c"),
		task("02.01.01.01", "d"),
	})
	if err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	removed, err := s.DeleteByPrefix("01.01.")
	if err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed %d, want 2", len(removed))
	}
	f, _ := s.Read()
	if len(f.Tasks) != 2 {
		t.Errorf("remaining %d, want 2", len(f.Tasks))
	}
	for _, task := range f.Tasks {
		if strings.HasPrefix(task.ID, "01.01.") {
			t.Errorf("task %s should have been deleted", task.ID)
		}
	}
}

func TestDeleteTaskExact(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddTasks([]Task{task("01.01.01.01", "a"), task("01.01.01.02", "b")}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}
	removed, err := s.DeleteTask("01.01.01.01")
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if removed.Name != "a" {
		t.Errorf("removed = %+v", removed)
	}
	if _, err := s.DeleteTask("01.01.01.01"); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestWriteSortsNumerically(t *testing.T) {
	s := newTestStore(t)
	err := s.AddTasks([]Task{
		task("01.01.01.10", "ten"),
		task("01.01.01.02", "two"),
		task("01.01.01.01", "one"),
	})
	if err != nil {
		t.Fatalf("AddTasks: %v", err)
	}
	f, _ := s.Read()
	got := []string{f.Tasks[0].ID, f.Tasks[1].ID, f.Tasks[2].ID}
	want := []string{"01.01.01.01", "01.01.01.02", "01.01.01.10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestGroupTasks(t *testing.T) {
	tasks := []Task{
		{ID: "02.01.01.01", StageName: "Rollout", BatchName: "Migrate", ThreadName: "Client", Status: StatusPending},
		{ID: "01.01.02.01", StageName: "Build", BatchName: "Core", ThreadName: "Verify", Status: StatusPending},
		{ID: "01.01.01.02", StageName: "Build", BatchName: "Core", ThreadName: "Mint", Status: StatusCompleted},
		{ID: "01.01.01.01", StageName: "Build", BatchName: "Core", ThreadName: "Mint", Status: StatusCompleted},
	}
	stages := GroupTasks(tasks)
	if len(stages) != 2 {
		t.Fatalf("len(stages) = %d, want 2", len(stages))
	}
	if stages[0].Stage != 1 || stages[0].StageName != "Build" {
		t.Errorf("stage 0 = %+v", stages[0])
	}
	threads := stages[0].Batches[0].Threads
	if len(threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(threads))
	}
	if threads[0].ThreadID != "01.01.01" || len(threads[0].Tasks) != 2 {
		t.Errorf("thread 0 = %+v", threads[0])
	}
	if threads[0].Tasks[0].ID != "01.01.01.01" {
		t.Errorf("tasks not sorted: %s", threads[0].Tasks[0].ID)
	}
}

func TestDiscoverThreadsInBatch(t *testing.T) {
	f := &File{Tasks: []Task{
		{ID: "01.01.01.01", ThreadName: "Mint", AssignedAgent: "claude", Status: StatusCompleted},
		{ID: "01.01.01.02", ThreadName: "Mint", Status: StatusPending},
		{ID: "01.01.02.01", ThreadName: "Verify", Status: StatusCancelled},
		{ID: "01.02.01.01", ThreadName: "Other", Status: StatusPending},
	}}
	threads := DiscoverThreadsInBatch(f, 1, 1)
	if len(threads) != 2 {
		t.Fatalf("len(threads) = %d, want 2", len(threads))
	}
	mint := threads[0]
	if mint.ThreadID != "01.01.01" || mint.TaskCount != 2 || mint.DoneCount != 1 || mint.AssignedAgent != "claude" {
		t.Errorf("mint = %+v", mint)
	}
	info := BatchMetadata(f, 1, 1)
	if info.ThreadCount != 2 || info.TaskCount != 3 {
		t.Errorf("info = %+v", info)
	}
}

func TestBackupCreatesTimestampedCopy(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddTasks([]Task{task("01.01.01.01", "a")}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}
	backupPath, err := s.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if !strings.Contains(filepath.Base(backupPath), ".backup-") {
		t.Errorf("backup path = %q", backupPath)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}
