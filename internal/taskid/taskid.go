// Package taskid encodes, decodes, and compares the hierarchical
// identifiers used across the workstream ledgers.
//
// Task IDs have four dot-separated numeric segments "SS.BB.TT.NN"
// (stage.batch.thread.task); thread IDs are the three-segment prefix
// "SS.BB.TT". Segments are zero-padded to two digits when formatted and
// compared numerically, never as strings: task "2" sorts before task "10".
package taskid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlbertoV5/workstream/internal/errors"
)

// TaskID is a parsed four-segment task identifier.
type TaskID struct {
	Stage  int
	Batch  int
	Thread int
	Task   int
}

// ThreadID is a parsed three-segment thread identifier.
type ThreadID struct {
	Stage  int
	Batch  int
	Thread int
}

// ParseTaskID parses "SS.BB.TT.NN" into its numeric segments.
// Returns a ValidationError unless the ID has exactly four numeric
// dot-separated segments.
func ParseTaskID(id string) (TaskID, error) {
	segments, err := parseSegments(id, 4)
	if err != nil {
		return TaskID{}, err
	}
	return TaskID{
		Stage:  segments[0],
		Batch:  segments[1],
		Thread: segments[2],
		Task:   segments[3],
	}, nil
}

// ParseThreadID parses "SS.BB.TT" into its numeric segments.
func ParseThreadID(id string) (ThreadID, error) {
	segments, err := parseSegments(id, 3)
	if err != nil {
		return ThreadID{}, err
	}
	return ThreadID{
		Stage:  segments[0],
		Batch:  segments[1],
		Thread: segments[2],
	}, nil
}

func parseSegments(id string, want int) ([]int, error) {
	parts := strings.Split(id, ".")
	if len(parts) != want {
		return nil, errors.NewValidationError(
			fmt.Sprintf("expected %d dot-separated segments", want)).
			WithField("id").WithValue(id)
	}

	segments := make([]int, want)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, errors.NewValidationError("segments must be non-negative integers").
				WithField("id").WithValue(id)
		}
		segments[i] = n
	}
	return segments, nil
}

// FormatTaskID formats segments as "SS.BB.TT.NN" with 2-digit zero padding.
func FormatTaskID(stage, batch, thread, task int) string {
	return fmt.Sprintf("%02d.%02d.%02d.%02d", stage, batch, thread, task)
}

// FormatThreadID formats segments as "SS.BB.TT" with 2-digit zero padding.
func FormatThreadID(stage, batch, thread int) string {
	return fmt.Sprintf("%02d.%02d.%02d", stage, batch, thread)
}

// String returns the canonical zero-padded form.
func (t TaskID) String() string {
	return FormatTaskID(t.Stage, t.Batch, t.Thread, t.Task)
}

// ThreadID returns the owning thread's identifier.
func (t TaskID) ThreadID() ThreadID {
	return ThreadID{Stage: t.Stage, Batch: t.Batch, Thread: t.Thread}
}

// String returns the canonical zero-padded form.
func (t ThreadID) String() string {
	return FormatThreadID(t.Stage, t.Batch, t.Thread)
}

// Compare orders two parsed task IDs numerically per segment.
// Returns -1, 0, or 1.
func (t TaskID) Compare(other TaskID) int {
	pairs := [4][2]int{
		{t.Stage, other.Stage},
		{t.Batch, other.Batch},
		{t.Thread, other.Thread},
		{t.Task, other.Task},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			if p[0] < p[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Compare orders two parsed thread IDs numerically per segment.
// Returns -1, 0, or 1.
func (t ThreadID) Compare(other ThreadID) int {
	pairs := [3][2]int{
		{t.Stage, other.Stage},
		{t.Batch, other.Batch},
		{t.Thread, other.Thread},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			if p[0] < p[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompareIDs orders two task ID strings numerically per segment.
// Malformed IDs sort after well-formed ones so that corrupt entries
// surface at the end of listings instead of hiding between valid rows.
func CompareIDs(a, b string) int {
	ta, errA := ParseTaskID(a)
	tb, errB := ParseTaskID(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	}
	return ta.Compare(tb)
}

// CompareThreadIDs orders two thread ID strings numerically per segment,
// with the same malformed-last behavior as CompareIDs.
func CompareThreadIDs(a, b string) int {
	ta, errA := ParseThreadID(a)
	tb, errB := ParseThreadID(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	}
	return ta.Compare(tb)
}

// StagePrefix returns the "SS." prefix used for stage-scoped matching.
func StagePrefix(stage int) string {
	return fmt.Sprintf("%02d.", stage)
}

// BatchPrefix returns the "SS.BB." prefix used for batch-scoped matching.
func BatchPrefix(stage, batch int) string {
	return fmt.Sprintf("%02d.%02d.", stage, batch)
}

// ThreadPrefix returns the "SS.BB.TT." prefix used for thread-scoped
// matching against task IDs.
func ThreadPrefix(stage, batch, thread int) string {
	return FormatThreadID(stage, batch, thread) + "."
}
