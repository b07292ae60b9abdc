// Package orchestrator turns an approved batch's threads into concurrent
// agent processes in a tmux pane grid, watches their sentinel completion
// files, and reconciles outcomes back into the task and thread ledgers
// after the controlling session ends.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/AlbertoV5/workstream/internal/errors"
)

// Sentinel file suffixes. Each thread process writes these into the run's
// marker directory as it finishes; the watcher treats existence as the
// signal and the content as context. Completion is detected through these
// files rather than pane exit codes because panes stay open for human
// review after the real work ends.
const (
	doneSuffix      = ".done.json"
	sessionSuffix   = ".session"
	synthesisSuffix = ".synthesis.json"
)

// DoneFile is the completion sentinel one thread writes when its agent
// finishes.
type DoneFile struct {
	ThreadID string `json:"thread_id"`
	ExitCode int    `json:"exit_code"`
	Model    string `json:"model,omitempty"`
}

// SynthesisFile is the structured output of the synthesis pass.
type SynthesisFile struct {
	ThreadID  string `json:"thread_id"`
	SessionID string `json:"session_id,omitempty"`
	Output    string `json:"output"`
}

// MarkerDir is the sentinel directory for one batch run, under the
// system temp dir so crashed runs never dirty the repository.
func MarkerDir(streamID string, stage, batch int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("work-%s-s%02db%02d", streamID, stage, batch))
}

// EnsureMarkerDir creates a fresh marker directory, clearing leftovers
// from a previous run of the same batch.
func EnsureMarkerDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "failed to clear marker directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create marker directory")
	}
	return nil
}

// DonePath returns the completion sentinel path for a thread.
func DonePath(dir, threadID string) string {
	return filepath.Join(dir, threadID+doneSuffix)
}

// SessionPath returns the session-ID sentinel path for a thread. The
// agent process writes its resumable session ID here.
func SessionPath(dir, threadID string) string {
	return filepath.Join(dir, threadID+sessionSuffix)
}

// SynthesisPath returns the synthesis-output sentinel path for a thread.
func SynthesisPath(dir, threadID string) string {
	return filepath.Join(dir, threadID+synthesisSuffix)
}

// ReadDone parses a thread's completion sentinel.
func ReadDone(dir, threadID string) (*DoneFile, error) {
	data, err := os.ReadFile(DonePath(dir, threadID))
	if err != nil {
		return nil, err
	}
	var done DoneFile
	if err := json.Unmarshal(data, &done); err != nil {
		return nil, errors.Wrapf(err, "failed to parse completion file for thread %s", threadID)
	}
	if done.ThreadID == "" {
		done.ThreadID = threadID
	}
	return &done, nil
}

// ReadSessionID returns the agent session ID a thread left behind, or ""
// when the sentinel does not exist.
func ReadSessionID(dir, threadID string) string {
	data, err := os.ReadFile(SessionPath(dir, threadID))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ReadSynthesis parses a thread's synthesis sentinel, or returns nil when
// none exists.
func ReadSynthesis(dir, threadID string) (*SynthesisFile, error) {
	data, err := os.ReadFile(SynthesisPath(dir, threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var synth SynthesisFile
	if err := json.Unmarshal(data, &synth); err != nil {
		return nil, errors.Wrapf(err, "failed to parse synthesis file for thread %s", threadID)
	}
	if synth.ThreadID == "" {
		synth.ThreadID = threadID
	}
	return &synth, nil
}

// threadFromMarker maps a sentinel filename back to its thread ID, with
// which suffix matched. Unknown files return ok=false.
func threadFromMarker(name string) (threadID, kind string, ok bool) {
	switch {
	case strings.HasSuffix(name, doneSuffix):
		return strings.TrimSuffix(name, doneSuffix), "done", true
	case strings.HasSuffix(name, synthesisSuffix):
		return strings.TrimSuffix(name, synthesisSuffix), "synthesis", true
	case strings.HasSuffix(name, sessionSuffix):
		return strings.TrimSuffix(name, sessionSuffix), "session", true
	}
	return "", "", false
}

// MarkerEvent is one observed sentinel.
type MarkerEvent struct {
	ThreadID string
	Kind     string // "done", "synthesis", "session"
}

// watchMarkers merges fsnotify events with a polling sweep into a single
// event stream. fsnotify covers the common case instantly; the sweep
// covers files written before the watcher started or on filesystems with
// unreliable notification.
func watchMarkers(dir string, poll <-chan struct{}, stop <-chan struct{}) (<-chan MarkerEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create marker watcher")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to watch marker directory")
	}

	events := make(chan MarkerEvent, 16)
	go func() {
		defer watcher.Close()
		defer close(events)
		// Events are at-least-once; the consumer is responsible for
		// idempotency. Retried threads rewrite the same sentinel paths, so
		// de-duplicating here would swallow their second completion.
		emit := func(name string) {
			threadID, kind, ok := threadFromMarker(filepath.Base(name))
			if !ok {
				return
			}
			select {
			case events <- MarkerEvent{ThreadID: threadID, Kind: kind}:
			case <-stop:
			}
		}
		sweep := func() {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return
			}
			for _, entry := range entries {
				emit(entry.Name())
			}
		}
		sweep()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					emit(event.Name)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-poll:
				sweep()
			}
		}
	}()
	return events, nil
}
