package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AlbertoV5/workstream/internal/approval"
	"github.com/AlbertoV5/workstream/internal/config"
	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/logging"
	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskstore"
	"github.com/AlbertoV5/workstream/internal/threadstore"
	"github.com/AlbertoV5/workstream/internal/tmux"
)

// Runner executes batches of threads for one workstream.
type Runner struct {
	cfg      *config.Config
	root     string
	streamID string
	tasks    *taskstore.Store
	threads  *threadstore.Store
	gate     *approval.Gate
	logger   *logging.Logger
	notifier *Notifier
}

// NewRunner wires a Runner for one workstream.
func NewRunner(cfg *config.Config, root, streamID string, locker *fstore.Locker, logger *logging.Logger) *Runner {
	if locker == nil {
		locker = fstore.NewLocker()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		cfg:      cfg,
		root:     root,
		streamID: streamID,
		tasks:    taskstore.NewStore(root, streamID, locker),
		threads:  threadstore.NewStore(root, streamID, locker),
		gate:     approval.NewGate(root, streamID, locker, logger),
		logger:   logger.WithStream(streamID).WithPhase("execution"),
		notifier: NewNotifier(cfg.Orchestrator.Notifications, logger),
	}
}

// threadRun is the per-thread state machine: queued -> running ->
// completed | failed | interrupted. Model retries stay within "running".
type threadRun struct {
	summary   taskstore.ThreadSummary
	sessionID string
	paneID    string
	modelIdx  int
	spawnedAt time.Time
	finished  bool
	exitCode  int
}

// BatchRun is a started batch: its session coordinates plus the state
// needed to watch and reconcile it.
type BatchRun struct {
	Socket    string
	Session   string
	MarkerDir string
	Stage     int
	Batch     int

	runner *Runner
	runs   map[string]*threadRun
	order  []string
}

// ThreadCount returns how many threads the run started.
func (b *BatchRun) ThreadCount() int { return len(b.order) }

// StartBatch validates the gates, starts one session per runnable thread
// in the ledger, and spawns the pane grid. An `only` filter narrows the
// run to the named thread IDs. It returns with the grid running
// detached; the caller decides whether to attach.
func (r *Runner) StartBatch(ctx context.Context, stage, batch int, only ...string) (*BatchRun, error) {
	decision, err := r.gate.CanRunStage(stage)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, errors.NewApprovalError("start batch", decision.Reason)
	}

	tf, err := r.tasks.Read()
	if err != nil {
		return nil, err
	}
	all := taskstore.DiscoverThreadsInBatch(tf, stage, batch)
	wanted := make(map[string]bool, len(only))
	for _, threadID := range only {
		wanted[threadID] = true
	}
	var runnable []taskstore.ThreadSummary
	for _, thread := range all {
		if len(wanted) > 0 && !wanted[thread.ThreadID] {
			continue
		}
		if thread.DoneCount < thread.TaskCount {
			runnable = append(runnable, thread)
		}
	}
	if len(all) == 0 {
		return nil, errors.NewNotFoundError("batch", fmt.Sprintf("%02d.%02d", stage, batch)).
			WithSuggestion("approve tasks for this batch first")
	}
	if len(runnable) == 0 {
		return nil, errors.NewValidationError("all threads in this batch are already done").
			WithField("batch").WithValue(fmt.Sprintf("%02d.%02d", stage, batch))
	}
	if max := r.cfg.Orchestrator.MaxThreadsPerBatch; len(runnable) > max {
		return nil, errors.NewValidationError(
			fmt.Sprintf("batch has %d runnable threads, above the configured maximum of %d",
				len(runnable), max)).
			WithField("batch").WithValue(fmt.Sprintf("%02d.%02d", stage, batch))
	}

	plan, err := plandoc.ParseFile(repo.PlanPath(r.root, r.streamID))
	if err != nil {
		return nil, err
	}
	prompts, err := WritePrompts(r.root, r.streamID, plan, runnable, tf)
	if err != nil {
		return nil, err
	}

	markerDir := MarkerDir(r.streamID, stage, batch)
	if err := EnsureMarkerDir(markerDir); err != nil {
		return nil, err
	}

	// One lock acquisition covers every thread's session start.
	starts := make([]threadstore.SessionStart, len(runnable))
	for i, thread := range runnable {
		starts[i] = threadstore.SessionStart{
			ThreadID:  thread.ThreadID,
			AgentName: r.cfg.Agent.Command,
			Model:     r.firstModel(),
		}
	}
	sessionIDs, err := r.threads.StartSessionsLocked(starts)
	if err != nil {
		return nil, err
	}

	run := &BatchRun{
		Socket:    tmux.StreamSocket(r.streamID),
		Session:   tmux.BatchSession(r.streamID, stage, batch),
		MarkerDir: markerDir,
		Stage:     stage,
		Batch:     batch,
		runner:    r,
		runs:      make(map[string]*threadRun, len(runnable)),
	}
	for i, thread := range runnable {
		run.runs[thread.ThreadID] = &threadRun{
			summary:   thread,
			sessionID: sessionIDs[i],
		}
		run.order = append(run.order, thread.ThreadID)
	}

	if err := r.spawnGrid(ctx, run, prompts); err != nil {
		// Roll the opened sessions back to interrupted so the ledger does
		// not show phantom running sessions.
		results := make([]threadstore.SessionResult, 0, len(run.order))
		for _, threadID := range run.order {
			results = append(results, threadstore.SessionResult{
				ThreadID:  threadID,
				SessionID: run.runs[threadID].sessionID,
				Status:    taskstore.SessionInterrupted,
			})
		}
		if cerr := r.threads.CompleteSessionsLocked(results); cerr != nil {
			r.logger.Error("failed to roll back sessions after spawn failure", "error", cerr)
		}
		return nil, err
	}
	r.logger.Info("batch started",
		"stage", stage, "batch", batch, "threads", len(runnable), "session", run.Session)
	return run, nil
}

func (r *Runner) firstModel() string {
	if len(r.cfg.Agent.Models) > 0 {
		return r.cfg.Agent.Models[0]
	}
	return ""
}

func (r *Runner) modelAt(idx int) string {
	if idx < len(r.cfg.Agent.Models) {
		return r.cfg.Agent.Models[idx]
	}
	return ""
}

func (r *Runner) command(run *BatchRun, threadID, promptPath string, modelIdx int) *ThreadCommand {
	state := run.runs[threadID]
	return &ThreadCommand{
		ThreadID:         threadID,
		SessionID:        state.sessionID,
		AgentCommand:     r.cfg.Agent.Command,
		Model:            r.modelAt(modelIdx),
		ExtraArgs:        r.cfg.Agent.ExtraArgs,
		PromptPath:       promptPath,
		MarkerDir:        run.MarkerDir,
		Synthesis:        r.cfg.Synthesis.Enabled,
		SynthesisCommand: r.cfg.Synthesis.Command,
		SynthesisModel:   r.cfg.Synthesis.Model,
	}
}

// spawnGrid creates the tmux session and places up to VisiblePanes
// threads into the tiled grid; threads beyond that go into hidden
// windows reachable through the n/p paging keys. Spawns are staggered to
// avoid a thundering herd of agent startups.
func (r *Runner) spawnGrid(ctx context.Context, run *BatchRun, prompts map[string]string) error {
	visible := r.cfg.Orchestrator.VisiblePanes
	stagger := r.cfg.Orchestrator.Stagger()

	for i, threadID := range run.order {
		cmd := r.command(run, threadID, prompts[threadID], 0)
		argv := cmd.SpawnArgv()
		var paneID string
		var err error
		switch {
		case i == 0:
			if err = tmux.NewSession(ctx, run.Socket, run.Session, r.root, argv); err == nil {
				var panes []tmux.PaneStatus
				if panes, err = tmux.ListPanes(ctx, run.Socket, run.Session); err == nil && len(panes) > 0 {
					paneID = panes[0].ID
				}
			}
		case i < visible:
			paneID, err = tmux.SplitPane(ctx, run.Socket, run.Session, r.root, argv)
		default:
			paneID, err = tmux.NewWindow(ctx, run.Socket, run.Session, threadID, r.root, argv)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to spawn thread %s", threadID)
		}
		state := run.runs[threadID]
		state.paneID = paneID
		state.spawnedAt = time.Now()
		_ = tmux.SetPaneTitle(ctx, run.Socket, paneID, threadID+" "+run.runs[threadID].summary.ThreadName)

		if i < len(run.order)-1 {
			select {
			case <-time.After(stagger):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := tmux.TiledLayout(ctx, run.Socket, run.Session); err != nil {
		return errors.Wrap(err, "failed to apply grid layout")
	}
	// Paging keys for the hidden windows beyond the visible grid.
	_ = tmux.CommandContext(ctx, run.Socket, "bind-key", "-n", "M-n", "next-window").Run()
	_ = tmux.CommandContext(ctx, run.Socket, "bind-key", "-n", "M-p", "previous-window").Run()
	return nil
}

// Watch consumes sentinel events until every thread has finished or ctx
// ends. It drives model-retry chaining and fires notifications; it runs
// concurrently with (and independently of) any interactive attach.
func (run *BatchRun) Watch(ctx context.Context) error {
	r := run.runner
	stop := make(chan struct{})
	defer close(stop)

	poll := make(chan struct{}, 1)
	ticker := time.NewTicker(r.cfg.Orchestrator.PollInterval())
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				select {
				case poll <- struct{}{}:
				default:
				}
			case <-stop:
				return
			}
		}
	}()

	events, err := watchMarkers(run.MarkerDir, poll, stop)
	if err != nil {
		return err
	}

	remaining := 0
	for _, state := range run.runs {
		if !state.finished {
			remaining++
		}
	}
	// The poll sweep re-emits every marker each tick; notify synthesis
	// arrivals once.
	synthSeen := make(map[string]bool)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Kind == "synthesis" {
				if !synthSeen[event.ThreadID] {
					synthSeen[event.ThreadID] = true
					r.notifier.SynthesisComplete(event.ThreadID)
				}
				continue
			}
			if event.Kind != "done" {
				continue
			}
			state, tracked := run.runs[event.ThreadID]
			if !tracked || state.finished {
				continue
			}
			done, err := ReadDone(run.MarkerDir, event.ThreadID)
			if err != nil {
				r.logger.Warn("unreadable completion file", "thread", event.ThreadID, "error", err)
				continue
			}
			if run.handleDone(ctx, state, done) {
				remaining--
			}
		}
	}
	r.notifier.BatchComplete(run.Stage, run.Batch)
	return nil
}

// handleDone applies one completion sentinel. A nonzero exit within the
// early-failure threshold falls through to the next configured model;
// anything slower is a genuine failure and is not retried. Returns
// whether the thread is now finished.
func (run *BatchRun) handleDone(ctx context.Context, state *threadRun, done *DoneFile) bool {
	r := run.runner
	elapsed := time.Since(state.spawnedAt)
	early := elapsed < r.cfg.Agent.EarlyFailureThreshold()
	nextModel := r.modelAt(state.modelIdx + 1)

	if done.ExitCode != 0 && early && nextModel != "" {
		r.logger.Info("early failure, retrying with fallback model",
			"thread", state.summary.ThreadID, "failed_model", done.Model,
			"next_model", nextModel, "elapsed", elapsed.String())
		if err := run.retryWithNextModel(ctx, state, done.ExitCode); err != nil {
			r.logger.Error("model retry failed", "thread", state.summary.ThreadID, "error", err)
			// Fall through and record the original failure.
		} else {
			return false
		}
	}

	state.finished = true
	state.exitCode = done.ExitCode
	status := taskstore.SessionCompleted
	if done.ExitCode != 0 {
		status = taskstore.SessionFailed
	}
	exit := done.ExitCode
	if err := r.threads.CompleteSession(threadstore.SessionResult{
		ThreadID:  state.summary.ThreadID,
		SessionID: state.sessionID,
		Status:    status,
		ExitCode:  &exit,
	}); err != nil {
		r.logger.Error("failed to record session completion",
			"thread", state.summary.ThreadID, "error", err)
	}
	icon := "ok"
	if done.ExitCode != 0 {
		icon = "failed"
	}
	_ = tmux.SetPaneTitle(ctx, run.Socket, state.paneID,
		fmt.Sprintf("[%s] %s %s", icon, state.summary.ThreadID, state.summary.ThreadName))
	r.notifier.ThreadComplete(state.summary.ThreadID, done.ExitCode == 0)
	return true
}

// retryWithNextModel closes the failed session, opens a fresh one on the
// next model, clears the stale sentinels, and respawns the pane.
func (run *BatchRun) retryWithNextModel(ctx context.Context, state *threadRun, exitCode int) error {
	r := run.runner
	threadID := state.summary.ThreadID

	exit := exitCode
	if err := r.threads.CompleteSession(threadstore.SessionResult{
		ThreadID:  threadID,
		SessionID: state.sessionID,
		Status:    taskstore.SessionFailed,
		ExitCode:  &exit,
	}); err != nil {
		return err
	}
	state.modelIdx++
	sessionID, err := r.threads.StartSession(threadstore.SessionStart{
		ThreadID:  threadID,
		AgentName: r.cfg.Agent.Command,
		Model:     r.modelAt(state.modelIdx),
	})
	if err != nil {
		return err
	}
	state.sessionID = sessionID
	state.spawnedAt = time.Now()

	_ = os.Remove(DonePath(run.MarkerDir, threadID))
	_ = os.Remove(SessionPath(run.MarkerDir, threadID))
	_ = os.Remove(SynthesisPath(run.MarkerDir, threadID))

	promptPath := repo.PromptsDir(r.root, r.streamID) + "/" + threadID + ".md"
	cmd := r.command(run, threadID, promptPath, state.modelIdx)
	return tmux.RespawnPane(ctx, run.Socket, state.paneID, cmd.SpawnArgv())
}

// Attach hands the terminal to the grid until the user detaches or the
// session ends. The watcher keeps running independently.
func (run *BatchRun) Attach() error {
	return tmux.Attach(run.Socket, run.Session)
}
