package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AlbertoV5/workstream/internal/config"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/logging"
	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskstore"
	"github.com/AlbertoV5/workstream/internal/threadstore"
)

func TestMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	done := DoneFile{ThreadID: "01.01.02", ExitCode: 3, Model: "sonnet"}
	data, _ := json.Marshal(done)
	if err := os.WriteFile(DonePath(dir, "01.01.02"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadDone(dir, "01.01.02")
	if err != nil {
		t.Fatalf("ReadDone: %v", err)
	}
	if got.ExitCode != 3 || got.Model != "sonnet" || got.ThreadID != "01.01.02" {
		t.Errorf("unexpected done file: %+v", got)
	}

	if err := os.WriteFile(SessionPath(dir, "01.01.02"), []byte("sess-abc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ReadSessionID(dir, "01.01.02"); got != "sess-abc" {
		t.Errorf("ReadSessionID = %q, want sess-abc", got)
	}
	if got := ReadSessionID(dir, "01.01.99"); got != "" {
		t.Errorf("missing session sentinel should read as empty, got %q", got)
	}

	synth, err := ReadSynthesis(dir, "01.01.02")
	if err != nil || synth != nil {
		t.Fatalf("missing synthesis should be (nil, nil), got (%+v, %v)", synth, err)
	}
	data, _ = json.Marshal(SynthesisFile{Output: "summary text"})
	if err := os.WriteFile(SynthesisPath(dir, "01.01.02"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	synth, err = ReadSynthesis(dir, "01.01.02")
	if err != nil {
		t.Fatalf("ReadSynthesis: %v", err)
	}
	if synth.Output != "summary text" || synth.ThreadID != "01.01.02" {
		t.Errorf("unexpected synthesis file: %+v", synth)
	}
}

func TestThreadFromMarker(t *testing.T) {
	cases := []struct {
		name     string
		threadID string
		kind     string
		ok       bool
	}{
		{"01.02.03.done.json", "01.02.03", "done", true},
		{"01.02.03.session", "01.02.03", "session", true},
		{"01.02.03.synthesis.json", "01.02.03", "synthesis", true},
		{"notes.txt", "", "", false},
	}
	for _, tc := range cases {
		threadID, kind, ok := threadFromMarker(tc.name)
		if threadID != tc.threadID || kind != tc.kind || ok != tc.ok {
			t.Errorf("threadFromMarker(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.name, threadID, kind, ok, tc.threadID, tc.kind, tc.ok)
		}
	}
}

func TestEnsureMarkerDirClearsLeftovers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "markers")
	if err := EnsureMarkerDir(dir); err != nil {
		t.Fatal(err)
	}
	stale := DonePath(dir, "01.01.01")
	if err := os.WriteFile(stale, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureMarkerDir(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale sentinel survived EnsureMarkerDir")
	}
}

func TestThreadCommandScript(t *testing.T) {
	cmd := &ThreadCommand{
		ThreadID:     "01.02.03",
		SessionID:    "sess-1",
		AgentCommand: "claude",
		Model:        "sonnet",
		ExtraArgs:    []string{"--permission-mode", "acceptEdits"},
		PromptPath:   "/tmp/prompts/01.02.03.md",
		MarkerDir:    "/tmp/markers",
	}
	script := cmd.Script()

	for _, want := range []string{
		"'claude' '--model' 'sonnet' '--session-id' 'sess-1' '--permission-mode' 'acceptEdits'",
		"< '/tmp/prompts/01.02.03.md'",
		`printf '{"thread_id":%s,"exit_code":%d,"model":%s}' '"01.02.03"' "$status" '"sonnet"'`,
		"'/tmp/markers/01.02.03.done.json'",
		"'/tmp/markers/01.02.03.session'",
		"exit \"$status\"",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
	if strings.Contains(script, "synthesis") {
		t.Error("synthesis fragment present without Synthesis enabled")
	}

	cmd.Synthesis = true
	cmd.SynthesisModel = "haiku"
	script = cmd.Script()
	for _, want := range []string{
		"--resume",
		"'--model' 'haiku' '--print' '--output-format' 'json'",
		"'/tmp/markers/01.02.03.synthesis.json'",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("synthesis script missing %q:\n%s", want, script)
		}
	}

	argv := cmd.SpawnArgv()
	if len(argv) != 3 || argv[0] != "sh" || argv[1] != "-c" {
		t.Errorf("SpawnArgv = %v, want sh -c wrapper", argv[:2])
	}
}

// Values carried in the done sentinel are passed to shell printf as
// arguments; a model name with quote or percent characters must not
// reach the format string.
func TestScriptQuotesDoneFileValues(t *testing.T) {
	cmd := &ThreadCommand{
		ThreadID:     "01.01.01",
		AgentCommand: "claude",
		Model:        `50%-"fast"`,
		PromptPath:   "/tmp/p.md",
		MarkerDir:    "/tmp/markers",
	}
	script := cmd.Script()

	if !strings.Contains(script, `printf '{"thread_id":%s,"exit_code":%d,"model":%s}'`) {
		t.Fatalf("done-file format string altered:\n%s", script)
	}
	if !strings.Contains(script, shellQuote(`"50%-\"fast\""`)) {
		t.Errorf("model not passed as a quoted JSON argument:\n%s", script)
	}
	if strings.Contains(script, `"model":"50%`) {
		t.Errorf("model interpolated into the format string:\n%s", script)
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Errorf("shellQuote = %q", got)
	}
	if got := shellQuote(""); got != "''" {
		t.Errorf("shellQuote empty = %q", got)
	}
}

func TestWatchMarkersEmitsAndReEmits(t *testing.T) {
	dir := t.TempDir()
	poll := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)

	events, err := watchMarkers(dir, poll, stop)
	if err != nil {
		t.Fatalf("watchMarkers: %v", err)
	}

	write := func() {
		data, _ := json.Marshal(DoneFile{ThreadID: "01.01.01", ExitCode: 0})
		if err := os.WriteFile(DonePath(dir, "01.01.01"), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	wait := func(label string) {
		deadline := time.After(5 * time.Second)
		for {
			select {
			case event := <-events:
				if event.ThreadID == "01.01.01" && event.Kind == "done" {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s event", label)
			}
		}
	}

	write()
	wait("initial")

	// A retried thread rewrites the same sentinel; the stream must carry
	// the second completion too. Trigger the sweep in case the rewrite
	// coalesced in fsnotify.
	write()
	go func() { poll <- struct{}{} }()
	wait("re-emitted")
}

func testPlan() *plandoc.Plan {
	return &plandoc.Plan{
		Name: "demo",
		Stages: []plandoc.Stage{{
			ID:           1,
			Name:         "Foundations",
			Constitution: "Do not touch generated files.",
			Batches: []plandoc.Batch{{
				ID:     1,
				Prefix: "01.01",
				Name:   "Core",
				Threads: []plandoc.Thread{{
					ID:      1,
					Name:    "Parser",
					Summary: "Build the parser.",
					Details: "Start from the lexer.",
				}},
			}},
		}},
	}
}

func TestBuildThreadPrompt(t *testing.T) {
	tasks := []taskstore.Task{
		{ID: "01.01.01.01", Name: "tokenizer", Status: taskstore.StatusPending},
		{ID: "01.01.01.02", Name: "ast", Status: taskstore.StatusCompleted},
	}
	prompt, err := BuildThreadPrompt(testPlan(), "01.01.01", tasks)
	if err != nil {
		t.Fatalf("BuildThreadPrompt: %v", err)
	}
	for _, want := range []string{
		"thread 01.01.01",
		"Do not touch generated files.",
		"Build the parser.",
		"Start from the lexer.",
		"01.01.01.01: tokenizer",
		"work update",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if _, err := BuildThreadPrompt(testPlan(), "09.01.01", nil); err == nil {
		t.Error("expected error for thread outside the plan")
	}
}

func TestWritePrompts(t *testing.T) {
	root := t.TempDir()
	if err := repo.EnsureStreamDir(root, "001-demo"); err != nil {
		t.Fatal(err)
	}
	tf := &taskstore.File{StreamID: "001-demo", Tasks: []taskstore.Task{
		{ID: "01.01.01.01", Name: "tokenizer", Status: taskstore.StatusPending},
	}}
	threads := []taskstore.ThreadSummary{{ThreadID: "01.01.01", ThreadName: "Parser", TaskCount: 1}}

	paths, err := WritePrompts(root, "001-demo", testPlan(), threads, tf)
	if err != nil {
		t.Fatalf("WritePrompts: %v", err)
	}
	data, err := os.ReadFile(paths["01.01.01"])
	if err != nil {
		t.Fatalf("reading prompt file: %v", err)
	}
	if !strings.Contains(string(data), "tokenizer") {
		t.Error("prompt file missing task name")
	}
}

func TestReconcileSettlesLedger(t *testing.T) {
	root := t.TempDir()
	if err := repo.EnsureStreamDir(root, "001-demo"); err != nil {
		t.Fatal(err)
	}
	locker := fstore.NewLocker()
	threads := threadstore.NewStore(root, "001-demo", locker)

	starts := []threadstore.SessionStart{
		{ThreadID: "01.01.01", AgentName: "claude", Model: "sonnet"},
		{ThreadID: "01.01.02", AgentName: "claude", Model: "sonnet"},
	}
	sessionIDs, err := threads.StartSessionsLocked(starts)
	if err != nil {
		t.Fatalf("StartSessionsLocked: %v", err)
	}

	markerDir := filepath.Join(t.TempDir(), "markers")
	if err := EnsureMarkerDir(markerDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(SessionPath(markerDir, "01.01.01"), []byte("agent-sess-9"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(SynthesisFile{Output: "thread one summary"})
	if err := os.WriteFile(SynthesisPath(markerDir, "01.01.01"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(config.Default(), root, "001-demo", locker, logging.NopLogger())
	run := &BatchRun{
		Socket:    "work-test-none",
		Session:   "work-test-s01b01",
		MarkerDir: markerDir,
		Stage:     1,
		Batch:     1,
		runner:    runner,
		runs: map[string]*threadRun{
			"01.01.01": {
				summary:   taskstore.ThreadSummary{ThreadID: "01.01.01"},
				sessionID: sessionIDs[0],
				finished:  true,
				exitCode:  0,
			},
			"01.01.02": {
				summary:   taskstore.ThreadSummary{ThreadID: "01.01.02"},
				sessionID: sessionIDs[1],
				paneID:    "%7",
			},
		},
		order: []string{"01.01.01", "01.01.02"},
	}
	// The finished thread's session was already closed by the watcher.
	exit := 0
	if err := threads.CompleteSession(threadstore.SessionResult{
		ThreadID:  "01.01.01",
		SessionID: sessionIDs[0],
		Status:    taskstore.SessionCompleted,
		ExitCode:  &exit,
	}); err != nil {
		t.Fatal(err)
	}

	report, err := run.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Completed) != 1 || report.Completed[0] != "01.01.01" {
		t.Errorf("Completed = %v", report.Completed)
	}
	// No live tmux session backs this run, so the unfinished thread is
	// interrupted.
	if len(report.Interrupted) != 1 || report.Interrupted[0] != "01.01.02" {
		t.Errorf("Interrupted = %v", report.Interrupted)
	}
	if report.Syntheses != 1 {
		t.Errorf("Syntheses = %d, want 1", report.Syntheses)
	}

	f, err := threads.Read()
	if err != nil {
		t.Fatal(err)
	}
	one, ok := threadstore.FindThread(f, "01.01.01")
	if !ok {
		t.Fatal("thread 01.01.01 missing from ledger")
	}
	if one.WorkingAgentSessionID != "agent-sess-9" {
		t.Errorf("WorkingAgentSessionID = %q", one.WorkingAgentSessionID)
	}
	if one.Synthesis == nil || one.Synthesis.Output != "thread one summary" {
		t.Errorf("Synthesis = %+v", one.Synthesis)
	}
	two, ok := threadstore.FindThread(f, "01.01.02")
	if !ok {
		t.Fatal("thread 01.01.02 missing from ledger")
	}
	if len(two.Sessions) != 1 || two.Sessions[0].Status != taskstore.SessionInterrupted {
		t.Errorf("thread two sessions = %+v", two.Sessions)
	}
	if two.CurrentSessionID != "" {
		t.Error("interrupted thread still has a current session")
	}

	if _, err := os.Stat(markerDir); !os.IsNotExist(err) {
		t.Error("marker dir not cleaned up")
	}
}
