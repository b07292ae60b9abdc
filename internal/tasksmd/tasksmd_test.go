package tasksmd

import (
	"strings"
	"testing"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

const sampleStaging = `# Tasks: Auth Overhaul

### Stage 1: Token issuance

##### Batch 01: Core tokens

###### Thread 01: Mint endpoint

- [x] Task 01.01.01.01: Add the mint endpoint
> Report: Endpoint merged with handler tests.
- [~] Task 01.01.01.02: Wire rate limiting

###### Thread 02: Verify middleware

- [ ] Task 01.01.02.01: Validate tokens in middleware
- [!] Task 01.01.02.02: Decide on clock skew budget
- [-] Task 01.01.02.03: Legacy cookie shim
`

func TestParse(t *testing.T) {
	tasks, err := Parse([]byte(sampleStaging))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("len(tasks) = %d, want 5", len(tasks))
	}

	want := []struct {
		id     string
		status taskstore.TaskStatus
	}{
		{"01.01.01.01", taskstore.StatusCompleted},
		{"01.01.01.02", taskstore.StatusInProgress},
		{"01.01.02.01", taskstore.StatusPending},
		{"01.01.02.02", taskstore.StatusBlocked},
		{"01.01.02.03", taskstore.StatusCancelled},
	}
	for i, w := range want {
		if tasks[i].ID != w.id || tasks[i].Status != w.status {
			t.Errorf("task %d = %s/%s, want %s/%s", i, tasks[i].ID, tasks[i].Status, w.id, w.status)
		}
	}

	first := tasks[0]
	if first.Report != "Endpoint merged with handler tests." {
		t.Errorf("report = %q", first.Report)
	}
	if first.StageName != "Token issuance" || first.BatchName != "Core tokens" || first.ThreadName != "Mint endpoint" {
		t.Errorf("heading context = %q/%q/%q", first.StageName, first.BatchName, first.ThreadName)
	}
	if tasks[2].ThreadName != "Verify middleware" {
		t.Errorf("thread context not updated: %q", tasks[2].ThreadName)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown status char": "- [?] Task 01.01.01.01: x\n",
		"short id":            "- [ ] Task 01.01.01: x\n",
		"orphan report":       "> Report: no task above\n",
		"duplicate id":        "- [ ] Task 01.01.01.01: a\n- [x] Task 01.01.01.01: b\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		var verr *errors.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestParseEmptyFileYieldsNoTasks(t *testing.T) {
	tasks, err := Parse([]byte("# Tasks: empty\n\nno rows here\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("len(tasks) = %d, want 0", len(tasks))
	}
}

func testPlan(t *testing.T) *plandoc.Plan {
	t.Helper()
	plan, err := plandoc.Parse([]byte(`# Plan: Demo

## Stages

### Stage 1: Build

#### Batches

##### Batch 01: Core

###### Thread 01: Mint

**Summary:** Add the mint endpoint.

###### Thread 02: Verify

### Stage 2: Rollout

#### Batches

##### Batch 01: Migrate

###### Thread 01: Client
`))
	if err != nil {
		t.Fatalf("plandoc.Parse: %v", err)
	}
	return plan
}

func TestGenerateRoundTrip(t *testing.T) {
	plan := testPlan(t)
	data := Generate(plan, GenerateOptions{})
	tasks, err := Parse(data)
	if err != nil {
		t.Fatalf("generated file does not parse: %v\n%s", err, data)
	}
	if len(tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3 placeholders", len(tasks))
	}
	if tasks[0].ID != "01.01.01.01" || tasks[0].Name != "Add the mint endpoint." {
		t.Errorf("task 0 = %+v", tasks[0])
	}
	// Thread without a summary falls back to its name.
	if tasks[1].Name != "Verify" {
		t.Errorf("task 1 name = %q", tasks[1].Name)
	}
	for _, task := range tasks {
		if task.Status != taskstore.StatusPending {
			t.Errorf("placeholder %s not pending: %s", task.ID, task.Status)
		}
	}
}

func TestGenerateEchoesExistingRows(t *testing.T) {
	plan := testPlan(t)
	existing := []taskstore.Task{
		{ID: "01.01.01.01", Name: "Add the mint endpoint", Status: taskstore.StatusCompleted, Report: "merged"},
		{ID: "01.01.01.02", Name: "Rate limiting", Status: taskstore.StatusInProgress},
	}
	data := Generate(plan, GenerateOptions{Existing: existing})
	out := string(data)
	if !strings.Contains(out, "- [x] Task 01.01.01.01: Add the mint endpoint") {
		t.Errorf("completed row not echoed:\n%s", out)
	}
	if !strings.Contains(out, "> Report: merged") {
		t.Errorf("report not echoed:\n%s", out)
	}
	if !strings.Contains(out, "- [~] Task 01.01.01.02: Rate limiting") {
		t.Errorf("in-progress row not echoed:\n%s", out)
	}
	// The covered thread gets no extra placeholder.
	if strings.Contains(out, "- [ ] Task 01.01.01.01") {
		t.Errorf("placeholder emitted for covered thread:\n%s", out)
	}
}

func TestGeneratePartialForAppendedStages(t *testing.T) {
	plan := testPlan(t)
	existing := []taskstore.Task{
		{ID: "01.01.01.01", Name: "Mint", StageName: "Build", BatchName: "Core", ThreadName: "Mint",
			Status: taskstore.StatusCompleted, Report: "merged"},
		{ID: "01.01.02.01", Name: "Verify", StageName: "Build", BatchName: "Core", ThreadName: "Verify",
			Status: taskstore.StatusPending},
	}
	data := Generate(plan, GenerateOptions{Existing: existing, OnlyStages: []int{2}})
	out := string(data)

	if !strings.Contains(out, "- [ ] Task 02.01.01.01: Client") {
		t.Errorf("new stage placeholder missing:\n%s", out)
	}
	// Completed prior work is echoed for context; pending prior work and
	// stage-1 placeholders are not.
	if !strings.Contains(out, "- [x] Task 01.01.01.01: Mint") {
		t.Errorf("completed context row missing:\n%s", out)
	}
	if strings.Contains(out, "01.01.02.01") {
		t.Errorf("pending prior task should not be echoed:\n%s", out)
	}

	tasks, err := Parse(data)
	if err != nil {
		t.Fatalf("partial file does not parse: %v", err)
	}
	byID := make(map[string]taskstore.Task)
	for _, task := range tasks {
		byID[task.ID] = task
	}
	if byID["01.01.01.01"].StageName != "Build" {
		t.Errorf("echoed row lost heading context: %+v", byID["01.01.01.01"])
	}
}
