package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

// BuildThreadPrompt assembles the working agent's instructions for one
// thread: the stage constitution, the thread details from the plan, and
// the ledger tasks it is responsible for, with reporting conventions.
func BuildThreadPrompt(plan *plandoc.Plan, threadID string, tasks []taskstore.Task) (string, error) {
	id, err := taskid.ParseThreadID(threadID)
	if err != nil {
		return "", err
	}
	stage, ok := plan.FindStage(id.Stage)
	if !ok {
		return "", errors.NewNotFoundError("stage", fmt.Sprintf("%d", id.Stage)).
			WithSuggestion("the plan may have been edited after tasks were created")
	}
	var thread *plandoc.Thread
	var batchName string
	for i := range stage.Batches {
		if stage.Batches[i].ID != id.Batch {
			continue
		}
		batchName = stage.Batches[i].Name
		for j := range stage.Batches[i].Threads {
			if stage.Batches[i].Threads[j].ID == id.Thread {
				thread = &stage.Batches[i].Threads[j]
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are working thread %s", threadID)
	if thread != nil {
		fmt.Fprintf(&b, " (%s)", thread.Name)
	}
	fmt.Fprintf(&b, " of stage %d (%s)", stage.ID, stage.Name)
	if batchName != "" {
		fmt.Fprintf(&b, ", batch %q", batchName)
	}
	b.WriteString(".\n\n")

	if stage.Constitution != "" {
		b.WriteString("## Ground rules for this stage\n\n")
		b.WriteString(stage.Constitution)
		b.WriteString("\n\n")
	}
	if thread != nil && thread.Summary != "" {
		b.WriteString("## Thread summary\n\n")
		b.WriteString(thread.Summary)
		b.WriteString("\n\n")
	}
	if thread != nil && thread.Details != "" {
		b.WriteString("## Instructions\n\n")
		b.WriteString(thread.Details)
		b.WriteString("\n\n")
	}

	b.WriteString("## Tasks\n\n")
	for _, task := range tasks {
		fmt.Fprintf(&b, "- %s: %s (currently %s)\n", task.ID, task.Name, task.Status)
	}
	b.WriteString("\nWork the tasks in order. After finishing each task, run\n")
	b.WriteString("'work update <task-id> --status completed --report \"<one line>\"'\n")
	b.WriteString("so the ledger reflects your progress. Other threads run in\n")
	b.WriteString("parallel; only touch files your thread owns.\n")
	return b.String(), nil
}

// WritePrompts renders and writes one prompt file per thread, returning
// threadID -> path. Prompt files are plain read-only inputs during the
// run; they live under the stream's prompts directory for auditability.
func WritePrompts(root, streamID string, plan *plandoc.Plan, threads []taskstore.ThreadSummary, tf *taskstore.File) (map[string]string, error) {
	dir := repo.PromptsDir(root, streamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create prompts directory")
	}
	paths := make(map[string]string, len(threads))
	for _, thread := range threads {
		prompt, err := BuildThreadPrompt(plan, thread.ThreadID, taskstore.TasksUnderPrefix(tf, thread.ThreadID+"."))
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, thread.ThreadID+".md")
		if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
			return nil, errors.Wrap(err, "failed to write prompt file")
		}
		paths[thread.ThreadID] = path
	}
	return paths, nil
}
