package tasksmd

import (
	"fmt"
	"strings"

	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

// GenerateOptions controls staging-file generation.
type GenerateOptions struct {
	// Existing tasks are echoed with their real status and report so a
	// regenerated file does not present completed work as pending.
	Existing []taskstore.Task
	// OnlyStages restricts output to the named stage numbers (the
	// plan-revision flow generates rows for appended stages only). Empty
	// means all stages.
	OnlyStages []int
}

// Generate renders the TASKS.md staging file from a parsed plan. Each
// thread gets one placeholder row unless existing ledger tasks already
// cover it, in which case the existing rows are echoed with their current
// status.
func Generate(plan *plandoc.Plan, opts GenerateOptions) []byte {
	existingByThread := make(map[string][]taskstore.Task)
	for _, task := range opts.Existing {
		id, err := taskid.ParseTaskID(task.ID)
		if err != nil {
			continue
		}
		key := id.ThreadID().String()
		existingByThread[key] = append(existingByThread[key], task)
	}
	only := make(map[int]bool, len(opts.OnlyStages))
	for _, n := range opts.OnlyStages {
		only[n] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Tasks: %s\n", plan.Name)
	b.WriteString("\nEdit the rows below, then approve with 'work tasks approve'.\n")

	// Partial generation echoes completed work from the excluded stages
	// first, so the editor sees prior context and the re-approval merge
	// carries the original names back through unchanged.
	if len(only) > 0 {
		var done []taskstore.Task
		for _, task := range opts.Existing {
			id, err := taskid.ParseTaskID(task.ID)
			if err != nil || only[id.Stage] {
				continue
			}
			if task.Status.Done() {
				done = append(done, task)
			}
		}
		for _, stage := range taskstore.GroupTasks(done) {
			fmt.Fprintf(&b, "\n### Stage %d: %s\n", stage.Stage, stage.StageName)
			for _, batch := range stage.Batches {
				id, err := taskid.ParseThreadID(batch.Prefix + "01")
				if err != nil {
					continue
				}
				fmt.Fprintf(&b, "\n##### Batch %02d: %s\n", id.Batch, batch.BatchName)
				for _, thread := range batch.Threads {
					tid, err := taskid.ParseThreadID(thread.ThreadID)
					if err != nil {
						continue
					}
					fmt.Fprintf(&b, "\n###### Thread %02d: %s\n\n", tid.Thread, thread.ThreadName)
					for _, task := range thread.Tasks {
						writeRow(&b, task)
					}
				}
			}
		}
	}

	for _, stage := range plan.Stages {
		if len(only) > 0 && !only[stage.ID] {
			continue
		}
		fmt.Fprintf(&b, "\n### Stage %d: %s\n", stage.ID, stage.Name)
		for _, batch := range stage.Batches {
			fmt.Fprintf(&b, "\n##### Batch %02d: %s\n", batch.ID, batch.Name)
			for _, thread := range batch.Threads {
				fmt.Fprintf(&b, "\n###### Thread %02d: %s\n\n", thread.ID, thread.Name)
				threadID := taskid.FormatThreadID(stage.ID, batch.ID, thread.ID)
				if rows := existingByThread[threadID]; len(rows) > 0 {
					for _, task := range rows {
						writeRow(&b, task)
					}
					continue
				}
				description := thread.Summary
				if description == "" {
					description = thread.Name
				}
				fmt.Fprintf(&b, "- [ ] Task %s: %s\n",
					taskid.FormatTaskID(stage.ID, batch.ID, thread.ID, 1), description)
			}
		}
	}
	return []byte(b.String())
}

func writeRow(b *strings.Builder, task taskstore.Task) {
	fmt.Fprintf(b, "- [%c] Task %s: %s\n", StatusChar(task.Status), task.ID, task.Name)
	if task.Report != "" {
		fmt.Fprintf(b, "> Report: %s\n", task.Report)
	}
}
