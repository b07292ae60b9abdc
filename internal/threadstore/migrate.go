package threadstore

import (
	"github.com/AlbertoV5/workstream/internal/logging"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

// MigrationReport summarizes one legacy-session migration run.
type MigrationReport struct {
	ThreadsCreated   int
	SessionsMigrated int
	BackupPath       string
	// Errors lists task IDs whose thread ID could not be derived; their
	// sessions are left in place rather than dropped.
	Errors []string
}

// Migrated reports whether the run changed anything.
func (r *MigrationReport) Migrated() bool {
	return r.SessionsMigrated > 0 || r.ThreadsCreated > 0
}

// MigrateFromTasks drains the deprecated per-task session arrays out of a
// legacy tasks.json into the thread ledger, de-duplicated by session ID.
// The original tasks.json is snapshot to a timestamped backup before it is
// rewritten without the legacy field. No-op when the file is already
// migrated.
//
// Both ledger locks are taken for the duration; migration is rare (once
// per legacy file) so the wide critical section is acceptable.
func MigrateFromTasks(tasks *taskstore.Store, threads *Store, logger *logging.Logger) (*MigrationReport, error) {
	report := &MigrationReport{}
	err := tasks.Modify(func(tf *taskstore.File) error {
		if !tf.HasLegacySessions() {
			return nil
		}
		backupPath, err := tasks.Backup()
		if err != nil {
			return err
		}
		report.BackupPath = backupPath

		err = threads.Modify(func(thf *File) error {
			for i := range tf.Tasks {
				task := &tf.Tasks[i]
				if len(task.Sessions) == 0 {
					continue
				}
				id, err := taskid.ParseTaskID(task.ID)
				if err != nil {
					report.Errors = append(report.Errors, task.ID)
					continue
				}
				threadID := id.ThreadID().String()
				thread := findThread(thf, threadID)
				if thread == nil {
					thread = ensureThread(thf, threadID)
					report.ThreadsCreated++
				}
				for _, session := range task.Sessions {
					if findSession(thread, session.SessionID) != nil {
						continue
					}
					thread.Sessions = append(thread.Sessions, session)
					report.SessionsMigrated++
				}
				if task.CurrentSessionID != "" && thread.CurrentSessionID == "" {
					thread.CurrentSessionID = task.CurrentSessionID
				}
				task.Sessions = nil
			}
			return nil
		})
		if err != nil {
			return err
		}

		if logger != nil {
			logger.Info("migrated legacy task sessions",
				"threads_created", report.ThreadsCreated,
				"sessions_migrated", report.SessionsMigrated,
				"parse_errors", len(report.Errors),
				"backup", report.BackupPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// EnsureMigrated runs the legacy migration when the tasks file still
// carries embedded sessions. Called before any read path that consumes
// session history.
func EnsureMigrated(tasks *taskstore.Store, threads *Store, logger *logging.Logger) (*MigrationReport, error) {
	tf, err := tasks.Read()
	if err != nil {
		return nil, err
	}
	if !tf.HasLegacySessions() {
		return &MigrationReport{}, nil
	}
	return MigrateFromTasks(tasks, threads, logger)
}
