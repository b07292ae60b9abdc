package taskstore

import (
	"sort"

	"github.com/AlbertoV5/workstream/internal/taskid"
)

// ThreadGroup is the leaf of the hierarchy: one thread's tasks in numeric
// order.
type ThreadGroup struct {
	ThreadID   string
	ThreadName string
	Tasks      []Task
}

// BatchGroup collects the threads of one batch.
type BatchGroup struct {
	Prefix    string
	BatchName string
	Threads   []ThreadGroup
}

// StageGroup collects the batches of one stage.
type StageGroup struct {
	Stage     int
	StageName string
	Batches   []BatchGroup
}

// GroupTasks arranges a flat task list into the stage → batch → thread
// hierarchy for display. Tasks with unparseable IDs are skipped; the
// ledger validates IDs on write so this only guards hand-edited files.
func GroupTasks(tasks []Task) []StageGroup {
	type key struct{ stage, batch, thread int }
	byThread := make(map[key][]Task)
	names := make(map[key]Task)
	for _, task := range tasks {
		id, err := taskid.ParseTaskID(task.ID)
		if err != nil {
			continue
		}
		k := key{id.Stage, id.Batch, id.Thread}
		byThread[k] = append(byThread[k], task)
		if _, seen := names[k]; !seen {
			names[k] = task
		}
	}

	keys := make([]key, 0, len(byThread))
	for k := range byThread {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.stage != b.stage {
			return a.stage < b.stage
		}
		if a.batch != b.batch {
			return a.batch < b.batch
		}
		return a.thread < b.thread
	})

	var stages []StageGroup
	for _, k := range keys {
		tasks := byThread[k]
		sort.SliceStable(tasks, func(i, j int) bool {
			return taskid.CompareIDs(tasks[i].ID, tasks[j].ID) < 0
		})
		sample := names[k]

		if len(stages) == 0 || stages[len(stages)-1].Stage != k.stage {
			stages = append(stages, StageGroup{Stage: k.stage, StageName: sample.StageName})
		}
		stage := &stages[len(stages)-1]

		prefix := taskid.BatchPrefix(k.stage, k.batch)
		if len(stage.Batches) == 0 || stage.Batches[len(stage.Batches)-1].Prefix != prefix {
			stage.Batches = append(stage.Batches, BatchGroup{Prefix: prefix, BatchName: sample.BatchName})
		}
		batch := &stage.Batches[len(stage.Batches)-1]

		batch.Threads = append(batch.Threads, ThreadGroup{
			ThreadID:   taskid.FormatThreadID(k.stage, k.batch, k.thread),
			ThreadName: sample.ThreadName,
			Tasks:      tasks,
		})
	}
	return stages
}

// DiscoverThreadsInBatch derives the threads of a batch from the flat
// task list, so the orchestrator never re-parses the plan document.
func DiscoverThreadsInBatch(f *File, stage, batch int) []ThreadSummary {
	prefix := taskid.BatchPrefix(stage, batch)
	byThread := make(map[string]*ThreadSummary)
	var order []string
	for _, task := range TasksUnderPrefix(f, prefix) {
		id, err := taskid.ParseTaskID(task.ID)
		if err != nil {
			continue
		}
		threadID := id.ThreadID().String()
		summary, ok := byThread[threadID]
		if !ok {
			summary = &ThreadSummary{ThreadID: threadID, ThreadName: task.ThreadName}
			byThread[threadID] = summary
			order = append(order, threadID)
		}
		if summary.AssignedAgent == "" {
			summary.AssignedAgent = task.AssignedAgent
		}
		summary.TaskCount++
		if task.Status.Done() {
			summary.DoneCount++
		}
	}
	out := make([]ThreadSummary, 0, len(order))
	for _, threadID := range order {
		out = append(out, *byThread[threadID])
	}
	return out
}

// BatchMetadata summarizes one batch from its tasks.
func BatchMetadata(f *File, stage, batch int) BatchInfo {
	prefix := taskid.BatchPrefix(stage, batch)
	threads := DiscoverThreadsInBatch(f, stage, batch)
	info := BatchInfo{Prefix: prefix, ThreadCount: len(threads)}
	for _, t := range threads {
		info.TaskCount += t.TaskCount
	}
	for _, task := range TasksUnderPrefix(f, prefix) {
		info.StageName = task.StageName
		info.BatchName = task.BatchName
		break
	}
	return info
}
