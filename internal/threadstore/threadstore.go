// Package threadstore owns the per-workstream thread ledger
// (threads.json): agent session history keyed by 3-segment thread ID,
// kept separate from task completion status. A thread can burn through
// several failed sessions before one succeeds; the task ledger only
// records the final outcome.
package threadstore

import (
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

// FileVersion is the current threads.json schema version.
const FileVersion = 1

// Synthesis is the post-hoc summary attached by a secondary agent pass.
type Synthesis struct {
	SessionID   string    `json:"session_id"`
	Output      string    `json:"output"`
	CompletedAt time.Time `json:"completed_at"`
}

// Thread aggregates the session history of one 3-segment thread ID.
type Thread struct {
	ThreadID              string              `json:"thread_id"`
	Sessions              []taskstore.Session `json:"sessions"`
	CurrentSessionID      string              `json:"current_session_id,omitempty"`
	OpencodeSessionID     string              `json:"opencode_session_id,omitempty"`
	WorkingAgentSessionID string              `json:"working_agent_session_id,omitempty"`
	Synthesis             *Synthesis          `json:"synthesis,omitempty"`
}

// File is the on-disk shape of threads.json.
type File struct {
	Version     int       `json:"version"`
	StreamID    string    `json:"stream_id"`
	LastUpdated time.Time `json:"last_updated"`
	Threads     []Thread  `json:"threads"`
}

// Store binds the thread ledger of one workstream to its file and lock.
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

// Path returns the threads.json location for this workstream.
func (s *Store) Path() string {
	return repo.ThreadsPath(s.root, s.streamID)
}

// Read loads the ledger; a missing file yields an empty one.
func (s *Store) Read() (*File, error) {
	f := &File{Version: FileVersion, StreamID: s.streamID}
	if err := fstore.ReadJSON(s.Path(), f); err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrap(err, "failed to read thread ledger")
	}
	if f.StreamID == "" {
		f.StreamID = s.streamID
	}
	return f, nil
}

// Write persists the ledger sorted by thread ID.
func (s *Store) Write(f *File) error {
	f.Version = FileVersion
	f.StreamID = s.streamID
	f.LastUpdated = time.Now().UTC()
	sort.SliceStable(f.Threads, func(i, j int) bool {
		return taskid.CompareThreadIDs(f.Threads[i].ThreadID, f.Threads[j].ThreadID) < 0
	})
	if err := fstore.WriteJSON(s.Path(), f); err != nil {
		return errors.Wrap(err, "failed to write thread ledger")
	}
	return nil
}

// Modify runs a lock-protected read-mutate-write cycle.
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

// SessionStart describes one session to open.
type SessionStart struct {
	ThreadID  string
	AgentName string
	Model     string
	// SessionID is generated when empty.
	SessionID string
}

// StartSession appends a running session to one thread and returns its
// session ID.
func (s *Store) StartSession(start SessionStart) (string, error) {
	ids, err := s.StartSessionsLocked([]SessionStart{start})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// StartSessionsLocked opens sessions for a whole batch of threads under a
// single lock acquisition, so starting a grid of parallel threads does not
// contend N times.
func (s *Store) StartSessionsLocked(starts []SessionStart) ([]string, error) {
	for i := range starts {
		if _, err := taskid.ParseThreadID(starts[i].ThreadID); err != nil {
			return nil, err
		}
		if starts[i].SessionID == "" {
			starts[i].SessionID = uuid.NewString()
		}
	}
	err := s.Modify(func(f *File) error {
		now := time.Now().UTC()
		for _, start := range starts {
			thread := ensureThread(f, start.ThreadID)
			thread.Sessions = append(thread.Sessions, taskstore.Session{
				SessionID: start.SessionID,
				AgentName: start.AgentName,
				Model:     start.Model,
				StartedAt: now,
				Status:    taskstore.SessionRunning,
			})
			thread.CurrentSessionID = start.SessionID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(starts))
	for i := range starts {
		ids[i] = starts[i].SessionID
	}
	return ids, nil
}

// SessionResult describes one session completion.
type SessionResult struct {
	ThreadID  string
	SessionID string
	Status    taskstore.SessionStatus
	ExitCode  *int
}

// CompleteSession transitions one session to a terminal status.
func (s *Store) CompleteSession(result SessionResult) error {
	return s.CompleteSessionsLocked([]SessionResult{result})
}

// CompleteSessionsLocked applies a batch of completions under one lock,
// used by reconciliation after the terminal session ends.
func (s *Store) CompleteSessionsLocked(results []SessionResult) error {
	for _, r := range results {
		switch r.Status {
		case taskstore.SessionCompleted, taskstore.SessionFailed, taskstore.SessionInterrupted:
		default:
			return errors.NewValidationError("session completion status must be terminal").
				WithField("status").WithValue(r.Status)
		}
	}
	return s.Modify(func(f *File) error {
		now := time.Now().UTC()
		for _, r := range results {
			thread := findThread(f, r.ThreadID)
			if thread == nil {
				return threadNotFound(r.ThreadID)
			}
			session := findSession(thread, r.SessionID)
			if session == nil {
				return errors.NewNotFoundError("session", r.SessionID).
					WithCause(errors.ErrSessionNotFound)
			}
			session.Status = r.Status
			completedAt := now
			session.CompletedAt = &completedAt
			session.ExitCode = r.ExitCode
			if thread.CurrentSessionID == r.SessionID {
				thread.CurrentSessionID = ""
			}
		}
		return nil
	})
}

// SetSynthesisOutput attaches a synthesis summary to a thread.
func (s *Store) SetSynthesisOutput(threadID, sessionID, output string) error {
	if _, err := taskid.ParseThreadID(threadID); err != nil {
		return err
	}
	return s.Modify(func(f *File) error {
		thread := ensureThread(f, threadID)
		thread.Synthesis = &Synthesis{
			SessionID:   sessionID,
			Output:      output,
			CompletedAt: time.Now().UTC(),
		}
		return nil
	})
}

// SetWorkingAgentSession records the resumable working-agent session ID
// scraped from a sentinel file after synthesis mode.
func (s *Store) SetWorkingAgentSession(threadID, sessionID string) error {
	if _, err := taskid.ParseThreadID(threadID); err != nil {
		return err
	}
	return s.Modify(func(f *File) error {
		ensureThread(f, threadID).WorkingAgentSessionID = sessionID
		return nil
	})
}

// FindThread returns the thread record for a 3-segment ID.
func FindThread(f *File, threadID string) (*Thread, bool) {
	t := findThread(f, threadID)
	return t, t != nil
}

// RunningSession returns the session currently marked running on a
// thread, if any.
func RunningSession(t *Thread) (*taskstore.Session, bool) {
	for i := range t.Sessions {
		if t.Sessions[i].Status == taskstore.SessionRunning {
			return &t.Sessions[i], true
		}
	}
	return nil, false
}

func ensureThread(f *File, threadID string) *Thread {
	if t := findThread(f, threadID); t != nil {
		return t
	}
	f.Threads = append(f.Threads, Thread{ThreadID: threadID})
	return &f.Threads[len(f.Threads)-1]
}

func findThread(f *File, threadID string) *Thread {
	for i := range f.Threads {
		if f.Threads[i].ThreadID == threadID {
			return &f.Threads[i]
		}
	}
	return nil
}

func findSession(t *Thread, sessionID string) *taskstore.Session {
	for i := range t.Sessions {
		if t.Sessions[i].SessionID == sessionID {
			return &t.Sessions[i]
		}
	}
	return nil
}

func threadNotFound(threadID string) error {
	return errors.NewNotFoundError("thread", threadID).
		WithCause(errors.ErrThreadNotFound).
		WithSuggestion("run 'work sessions' to list threads")
}
