package taskstore

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskid"
)

// Store binds the task ledger of one workstream to its file and lock.
type Store struct {
	root     string
	streamID string
	locker   *fstore.Locker
}

// NewStore returns a Store for the given workstream.
func NewStore(root, streamID string, locker *fstore.Locker) *Store {
	if locker == nil {
		locker = fstore.NewLocker()
	}
	return &Store{root: root, streamID: streamID, locker: locker}
}

// Path returns the tasks.json location for this workstream.
func (s *Store) Path() string {
	return repo.TasksPath(s.root, s.streamID)
}

// Read loads the ledger. A missing file yields an empty ledger so callers
// can treat "no tasks yet" and "empty task list" uniformly.
func (s *Store) Read() (*File, error) {
	f := &File{Version: FileVersion, StreamID: s.streamID}
	if err := fstore.ReadJSON(s.Path(), f); err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrap(err, "failed to read task ledger")
	}
	if f.StreamID == "" {
		f.StreamID = s.streamID
	}
	return f, nil
}

// Write persists the ledger, stamping last_updated and sorting tasks in
// numeric ID order for diff stability.
func (s *Store) Write(f *File) error {
	f.Version = FileVersion
	f.StreamID = s.streamID
	f.LastUpdated = time.Now().UTC()
	sort.SliceStable(f.Tasks, func(i, j int) bool {
		return taskid.CompareIDs(f.Tasks[i].ID, f.Tasks[j].ID) < 0
	})
	if err := fstore.WriteJSON(s.Path(), f); err != nil {
		return errors.Wrap(err, "failed to write task ledger")
	}
	return nil
}

// Modify runs a lock-protected read-mutate-write cycle. Nothing is written
// when fn returns an error.
func (s *Store) Modify(fn func(*File) error) error {
	return s.locker.WithLock(s.Path(), func() error {
		f, err := s.Read()
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return s.Write(f)
	})
}

// Backup copies the current ledger to a timestamped sibling file and
// returns its path. Used before destructive schema migration.
func (s *Store) Backup() (string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return "", errors.Wrap(err, "failed to read task ledger for backup")
	}
	backupPath := fmt.Sprintf("%s.backup-%s", s.Path(), time.Now().UTC().Format("20060102-150405"))
	if err := fstore.AtomicWrite(backupPath, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write task ledger backup")
	}
	return backupPath, nil
}

// AddTasks upserts tasks by ID. New tasks are inserted as given; existing
// tasks take the fresh descriptive metadata (name, hierarchy names, agent)
// but keep their execution state: status, timestamps, report, breadcrumb,
// and session pointers survive re-planning.
func (s *Store) AddTasks(tasks []Task) error {
	for i := range tasks {
		if _, err := taskid.ParseTaskID(tasks[i].ID); err != nil {
			return err
		}
		if tasks[i].Status == "" {
			tasks[i].Status = StatusPending
		}
		if !tasks[i].Status.Valid() {
			return errors.NewValidationError("invalid task status").
				WithField("status").WithValue(tasks[i].Status)
		}
	}
	return s.Modify(func(f *File) error {
		byID := make(map[string]int, len(f.Tasks))
		for i := range f.Tasks {
			byID[f.Tasks[i].ID] = i
		}
		now := time.Now().UTC()
		for _, incoming := range tasks {
			if i, ok := byID[incoming.ID]; ok {
				existing := &f.Tasks[i]
				existing.Name = incoming.Name
				existing.StageName = incoming.StageName
				existing.BatchName = incoming.BatchName
				existing.ThreadName = incoming.ThreadName
				if incoming.AssignedAgent != "" {
					existing.AssignedAgent = incoming.AssignedAgent
				}
				existing.UpdatedAt = now
				continue
			}
			incoming.CreatedAt = now
			incoming.UpdatedAt = now
			f.Tasks = append(f.Tasks, incoming)
			byID[incoming.ID] = len(f.Tasks) - 1
		}
		return nil
	})
}

// UpdateTaskStatus applies a partial update to one task and returns the
// updated record.
func (s *Store) UpdateTaskStatus(id string, update TaskUpdate) (*Task, error) {
	if _, err := taskid.ParseTaskID(id); err != nil {
		return nil, err
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, errors.NewValidationError("invalid task status").
			WithField("status").WithValue(*update.Status)
	}
	var updated Task
	err := s.Modify(func(f *File) error {
		task := findTask(f, id)
		if task == nil {
			return taskNotFound(id)
		}
		if update.Status != nil {
			task.Status = *update.Status
		}
		if update.AssignedAgent != nil {
			task.AssignedAgent = *update.AssignedAgent
		}
		if update.Breadcrumb != nil {
			task.Breadcrumb = *update.Breadcrumb
		}
		if update.Report != nil {
			task.Report = *update.Report
		}
		if update.SessionID != nil {
			task.CurrentSessionID = *update.SessionID
		}
		task.UpdatedAt = time.Now().UTC()
		updated = *task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask removes one task by exact ID and returns the deleted record.
func (s *Store) DeleteTask(id string) (*Task, error) {
	var removed Task
	err := s.Modify(func(f *File) error {
		for i := range f.Tasks {
			if f.Tasks[i].ID == id {
				removed = f.Tasks[i]
				f.Tasks = append(f.Tasks[:i], f.Tasks[i+1:]...)
				return nil
			}
		}
		return taskNotFound(id)
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// DeleteByPrefix removes every task whose ID starts with the given
// stage/batch/thread prefix (e.g. "01." or "01.02.") and returns the
// deleted records for caller confirmation.
func (s *Store) DeleteByPrefix(prefix string) ([]Task, error) {
	var removed []Task
	err := s.Modify(func(f *File) error {
		kept := f.Tasks[:0]
		for _, task := range f.Tasks {
			if strings.HasPrefix(task.ID, prefix) {
				removed = append(removed, task)
			} else {
				kept = append(kept, task)
			}
		}
		f.Tasks = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// FindTask returns the task with the given ID from a loaded ledger.
func FindTask(f *File, id string) (*Task, bool) {
	task := findTask(f, id)
	return task, task != nil
}

func findTask(f *File, id string) *Task {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			return &f.Tasks[i]
		}
	}
	return nil
}

func taskNotFound(id string) error {
	return errors.NewNotFoundError("task", id).
		WithCause(errors.ErrTaskNotFound).
		WithSuggestion("run 'work status' to list tasks")
}

// TasksUnderPrefix returns the tasks whose IDs start with prefix, in
// numeric order.
func TasksUnderPrefix(f *File, prefix string) []Task {
	var out []Task
	for _, task := range f.Tasks {
		if strings.HasPrefix(task.ID, prefix) {
			out = append(out, task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return taskid.CompareIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}
