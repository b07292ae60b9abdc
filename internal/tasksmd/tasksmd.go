// Package tasksmd is the codec for the TASKS.md staging file: the
// human-editable intermediate between plan approval and the task ledger.
// It is produced from the plan document, edited by hand, consumed by
// tasks approval, and then deleted.
//
// The file reuses the plan's Stage/Batch/Thread heading convention; task
// rows are list items of the form
//
//	- [x] Task 01.02.01.01: description
//
// where the status character maps x=completed, ~=in_progress, !=blocked,
// -=cancelled, and space=pending. An optional "> Report: ..." quote line
// after a row carries its completion report through the round trip.
package tasksmd

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

var (
	taskLine   = regexp.MustCompile(`^- \[(.)\] Task (\S+):\s*(.*)$`)
	reportLine = regexp.MustCompile(`^>\s*Report:\s*(.*)$`)
	stageLine  = regexp.MustCompile(`^### Stage (\d+):\s*(.+)$`)
	batchLine  = regexp.MustCompile(`^##### Batch (\d+):\s*(.+)$`)
	threadLine = regexp.MustCompile(`^###### Thread (\d+):\s*(.+)$`)
)

// StatusChar returns the single-character marker for a task status.
func StatusChar(s taskstore.TaskStatus) byte {
	switch s {
	case taskstore.StatusCompleted:
		return 'x'
	case taskstore.StatusInProgress:
		return '~'
	case taskstore.StatusBlocked:
		return '!'
	case taskstore.StatusCancelled:
		return '-'
	default:
		return ' '
	}
}

// StatusFromChar is the inverse of StatusChar.
func StatusFromChar(c byte) (taskstore.TaskStatus, bool) {
	switch c {
	case 'x', 'X':
		return taskstore.StatusCompleted, true
	case '~':
		return taskstore.StatusInProgress, true
	case '!':
		return taskstore.StatusBlocked, true
	case '-':
		return taskstore.StatusCancelled, true
	case ' ':
		return taskstore.StatusPending, true
	}
	return "", false
}

// Parse reads staging content into task records. Heading context supplies
// the stage/batch/thread names; the row itself carries the full 4-segment
// ID and description. A file with no task rows parses to an empty slice;
// the approval layer treats that as a validation failure.
func Parse(data []byte) ([]taskstore.Task, error) {
	var (
		tasks      []taskstore.Task
		stageName  string
		batchName  string
		threadName string
		lineNo     int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t")
		switch {
		case stageLine.MatchString(line):
			m := stageLine.FindStringSubmatch(line)
			stageName = strings.TrimSpace(m[2])
			batchName, threadName = "", ""
		case batchLine.MatchString(line):
			m := batchLine.FindStringSubmatch(line)
			batchName = strings.TrimSpace(m[2])
			threadName = ""
		case threadLine.MatchString(line):
			m := threadLine.FindStringSubmatch(line)
			threadName = strings.TrimSpace(m[2])
		case taskLine.MatchString(line):
			m := taskLine.FindStringSubmatch(line)
			status, ok := StatusFromChar(m[1][0])
			if !ok {
				return nil, errors.NewValidationError(fmt.Sprintf("line %d: unknown status character %q", lineNo, m[1])).
					WithField("line").WithValue(line)
			}
			if _, err := taskid.ParseTaskID(m[2]); err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("line %d: bad task ID %q", lineNo, m[2])).
					WithField("line").WithValue(line).WithCause(err)
			}
			tasks = append(tasks, taskstore.Task{
				ID:         m[2],
				Name:       strings.TrimSpace(m[3]),
				StageName:  stageName,
				BatchName:  batchName,
				ThreadName: threadName,
				Status:     status,
			})
		case reportLine.MatchString(line):
			if len(tasks) == 0 {
				return nil, errors.NewValidationError(fmt.Sprintf("line %d: report line without a preceding task row", lineNo))
			}
			m := reportLine.FindStringSubmatch(line)
			tasks[len(tasks)-1].Report = strings.TrimSpace(m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan staging file")
	}

	seen := make(map[string]int, len(tasks))
	for i := range tasks {
		if prev, dup := seen[tasks[i].ID]; dup {
			return nil, errors.NewValidationError(fmt.Sprintf("duplicate task ID %s (rows %d and %d)", tasks[i].ID, prev+1, i+1)).
				WithField("id").WithValue(tasks[i].ID)
		}
		seen[tasks[i].ID] = i
	}
	return tasks, nil
}
