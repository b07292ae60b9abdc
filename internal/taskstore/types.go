// Package taskstore owns the per-workstream task ledger (tasks.json):
// CRUD, prefix queries, and hierarchical grouping. Reads are optimistic;
// every mutation goes through the ledger lock so parallel agent processes
// cannot lose updates.
package taskstore

import (
	"time"
)

// FileVersion is the current tasks.json schema version.
const FileVersion = 1

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// Done reports whether the status counts toward stage completion.
func (s TaskStatus) Done() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SessionStatus is the lifecycle state of one agent execution attempt.
type SessionStatus string

const (
	SessionRunning     SessionStatus = "running"
	SessionCompleted   SessionStatus = "completed"
	SessionFailed      SessionStatus = "failed"
	SessionInterrupted SessionStatus = "interrupted"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionRunning, SessionCompleted, SessionFailed, SessionInterrupted:
		return true
	}
	return false
}

// Session is one agent execution attempt. Sessions live in the thread
// ledger; the Task.Sessions field is the deprecated pre-migration home.
type Session struct {
	SessionID   string        `json:"session_id"`
	AgentName   string        `json:"agent_name"`
	Model       string        `json:"model,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Status      SessionStatus `json:"status"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	ExitCode    *int          `json:"exit_code,omitempty"`
}

// Task is one ledger entry. The ID encodes stage.batch.thread.task
// numbering as four zero-padded segments.
type Task struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	StageName     string     `json:"stage_name,omitempty"`
	BatchName     string     `json:"batch_name,omitempty"`
	ThreadName    string     `json:"thread_name,omitempty"`
	Status        TaskStatus `json:"status"`
	AssignedAgent string     `json:"assigned_agent,omitempty"`
	Breadcrumb    string     `json:"breadcrumb,omitempty"`
	Report        string     `json:"report,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Sessions is the deprecated embedded session history. It is drained
	// into the thread ledger by the one-time migration on first read of a
	// legacy file, then never written again.
	Sessions []Session `json:"sessions,omitempty"`

	CurrentSessionID string `json:"current_session_id,omitempty"`
}

// File is the on-disk shape of tasks.json.
type File struct {
	Version     int       `json:"version"`
	StreamID    string    `json:"stream_id"`
	LastUpdated time.Time `json:"last_updated"`
	Tasks       []Task    `json:"tasks"`
}

// HasLegacySessions reports whether any task still carries the deprecated
// embedded session array.
func (f *File) HasLegacySessions() bool {
	for i := range f.Tasks {
		if len(f.Tasks[i].Sessions) > 0 {
			return true
		}
	}
	return false
}

// TaskUpdate is a partial update applied by UpdateTaskStatus. Nil fields
// are left untouched.
type TaskUpdate struct {
	Status        *TaskStatus
	AssignedAgent *string
	Breadcrumb    *string
	Report        *string
	SessionID     *string
}

// ThreadSummary describes one thread discovered from the flat task list.
type ThreadSummary struct {
	ThreadID      string
	ThreadName    string
	AssignedAgent string
	TaskCount     int
	DoneCount     int
}

// BatchInfo is display metadata for a batch derived from its tasks.
type BatchInfo struct {
	Prefix      string
	StageName   string
	BatchName   string
	ThreadCount int
	TaskCount   int
}
